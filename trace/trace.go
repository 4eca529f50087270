// Package trace receives per-stage, per-cycle pipeline events for display.
// Sinks are write-only: nothing they do feeds back into simulation state.
package trace

import (
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/yanghyeonseo/ca-pa4/insts"
)

// Stage identifies a pipeline stage.
type Stage uint8

// Pipeline stages.
const (
	StageIF Stage = iota
	StageID
	StageEX
	StageMM
	StageWB
)

func (s Stage) String() string {
	switch s {
	case StageIF:
		return "IF"
	case StageID:
		return "ID"
	case StageEX:
		return "EX"
	case StageMM:
		return "MM"
	case StageWB:
		return "WB"
	}
	return "??"
}

// Event is what one stage did in one cycle.
type Event struct {
	Cycle uint64
	Stage Stage
	PC    uint32
	Inst  uint32
	Info  string
}

// Sink receives events.
type Sink interface {
	Record(e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e Event)

// Record calls f(e).
func (f SinkFunc) Record(e Event) { f(e) }

// MultiSink fans events out to several sinks.
type MultiSink []Sink

// Record forwards e to every sink.
func (m MultiSink) Record(e Event) {
	for _, s := range m {
		s.Record(e)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Record appends e.
func (r *Recorder) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Filter returns the recorded events of one stage.
func (r *Recorder) Filter(stage Stage) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}

// Level controls how much the text sink and the driver print.
type Level int

// Trace levels.
const (
	LevelNone        Level = 0 // nothing
	LevelRegs        Level = 1 // final register dump
	LevelSummary     Level = 2 // 1 + run summary
	LevelStages      Level = 3 // 2 + the instruction in every stage
	LevelDetail      Level = 4 // 3 + per-stage diagnostics
	LevelRegsEach    Level = 5 // 4 + register dump every cycle
	LevelMemoryEach  Level = 6 // 5 + data memory dump every cycle
	MaxLevel               = LevelMemoryEach
	DefaultTextLevel       = LevelSummary
)

// TextSink writes one fixed-column line per stage per cycle.
type TextSink struct {
	w          io.Writer
	level      Level
	startCycle uint64
}

// NewTextSink creates a text sink. Events before startCycle are dropped.
func NewTextSink(w io.Writer, level Level, startCycle uint64) *TextSink {
	return &TextSink{w: w, level: level, startCycle: startCycle}
}

// Enabled reports whether events at cycle would be printed.
func (t *TextSink) Enabled(cycle uint64) bool {
	return t.level >= LevelStages && cycle >= t.startCycle
}

// Record prints e.
func (t *TextSink) Record(e Event) {
	if !t.Enabled(e.Cycle) {
		return
	}

	line := fmt.Sprintf("%-8d [%s] 0x%08x: %-24s", e.Cycle, e.Stage, e.PC, insts.Disassemble(e.Inst))
	if t.level >= LevelDetail && e.Info != "" {
		line += " # " + e.Info
	}
	_, _ = fmt.Fprintln(t.w, line)
}

// LogSink emits each event as an hclog trace record.
type LogSink struct {
	logger hclog.Logger
}

// NewLogSink creates a sink over logger.
func NewLogSink(logger hclog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record logs e at trace level.
func (l *LogSink) Record(e Event) {
	if !l.logger.IsTrace() {
		return
	}
	l.logger.Trace("stage",
		"cycle", e.Cycle,
		"stage", e.Stage.String(),
		"pc", hclog.Fmt("0x%08x", e.PC),
		"inst", insts.Disassemble(e.Inst),
		"info", e.Info,
	)
}

// RotatingFileConfig sets up a size-rotated trace file.
type RotatingFileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// NewRotatingFile opens a trace file that rotates by size.
func NewRotatingFile(cfg RotatingFileConfig) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
}
