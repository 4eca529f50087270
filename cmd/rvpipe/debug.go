package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/spf13/cobra"

	"github.com/yanghyeonseo/ca-pa4/insts"
	"github.com/yanghyeonseo/ca-pa4/timing/core"
	"github.com/yanghyeonseo/ca-pa4/timing/pipeline"
	"github.com/yanghyeonseo/ca-pa4/trace"
)

type debugCommand struct {
	name  string
	usage string
	help  string
}

var debugCommands = []debugCommand{
	{"step", "step [n]", "advance n cycles (default 1)"},
	{"run", "run", "run until ebreak, a fault, a breakpoint or the cycle limit"},
	{"pipe", "pipe", "show every stage of the last cycle"},
	{"regs", "regs", "dump the register file"},
	{"mem", "mem <addr> [n]", "show n words at addr"},
	{"btb", "btb", "list valid BTB entries"},
	{"stats", "stats", "print run statistics"},
	{"break", "break <addr>", "stop run when addr is fetched"},
	{"delete", "delete <addr>", "remove a breakpoint"},
	{"breaks", "breaks", "list breakpoints"},
	{"reset", "reset", "restart the program"},
	{"help", "help", "list commands"},
	{"quit", "quit", "leave the debugger"},
}

func newDebugCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "debug <program>",
		Short: "Step a program cycle by cycle in an interactive shell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.newDebugger(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = d.c.Close() }()

			d.prompt()
			return nil
		},
	}
}

// debugger holds one interactive session.
type debugger struct {
	c   *core.Core
	out io.Writer

	// last holds the most recent event of each stage.
	last        [trace.StageWB + 1]trace.Event
	breakpoints map[uint32]bool
}

func (a *app) newDebugger(path string) (*debugger, error) {
	d := &debugger{
		out:         a.out,
		breakpoints: map[uint32]bool{},
	}

	sink := trace.SinkFunc(func(e trace.Event) {
		d.last[e.Stage] = e
	})

	c, err := a.newCore(path, core.WithSink(sink))
	if err != nil {
		return nil, err
	}
	d.c = c

	return d, nil
}

func (d *debugger) prompt() {
	p := prompt.New(
		func(in string) { d.execute(in) },
		d.complete,
		prompt.OptionPrefix("(rvpipe) "),
		prompt.OptionTitle("rvpipe debugger"),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			return breakline && isQuit(in)
		}),
		prompt.OptionAddKeyBind(prompt.KeyBind{
			Key: prompt.ControlL,
			Fn: func(*prompt.Buffer) {
				_, _ = fmt.Fprint(d.out, "\x1b[2J\x1b[H")
			},
		}),
	)

	d.printf("Loaded at 0x%08x. Type 'help' for commands.\n", d.c.Entry())
	p.Run()
}

func isQuit(in string) bool {
	switch strings.TrimSpace(in) {
	case "quit", "exit", "q":
		return true
	}
	return false
}

func (d *debugger) complete(doc prompt.Document) []prompt.Suggest {
	if strings.Contains(doc.TextBeforeCursor(), " ") {
		return []prompt.Suggest{}
	}

	suggests := make([]prompt.Suggest, 0, len(debugCommands))
	for _, c := range debugCommands {
		suggests = append(suggests, prompt.Suggest{Text: c.name, Description: c.help})
	}
	return prompt.FilterHasPrefix(suggests, doc.GetWordBeforeCursor(), true)
}

func (d *debugger) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(d.out, format, args...)
}

// execute runs one command line. It returns true for quit.
func (d *debugger) execute(line string) bool {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "step", "s":
		n, err := parseCount(args, 1)
		if err != nil {
			d.printf("%v\n", err)
			return false
		}
		d.step(n)
	case "run", "r":
		d.run()
	case "pipe", "p":
		d.showPipe()
	case "regs":
		d.printf("%s", d.c.RegFile().Dump())
	case "mem", "x":
		d.showMemory(args[1:])
	case "btb":
		d.showBTB()
	case "stats":
		d.c.WriteSummary(d.out, d.c.Pipeline().Result())
	case "break", "b":
		d.setBreakpoint(args[1:], true)
	case "delete", "d":
		d.setBreakpoint(args[1:], false)
	case "breaks":
		d.showBreakpoints()
	case "reset":
		d.c.Reset()
		d.last = [trace.StageWB + 1]trace.Event{}
		d.printf("Reset to 0x%08x\n", d.c.Entry())
	case "help", "h":
		for _, c := range debugCommands {
			d.printf("  %-16s %s\n", c.usage, c.help)
		}
	case "quit", "exit", "q":
		return true
	default:
		d.printf("Unknown command %q. Type 'help' for commands.\n", args[0])
	}

	return false
}

func parseCount(args []string, def uint64) (uint64, error) {
	if len(args) < 2 {
		return def, nil
	}
	n, err := strconv.ParseUint(args[1], 0, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid count %q", args[1])
	}
	return n, nil
}

func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint32(v), nil
}

func (d *debugger) step(n uint64) {
	for i := uint64(0); i < n; i++ {
		if !d.c.Step() {
			break
		}
	}
	d.showPipe()
	d.reportHalt()
}

func (d *debugger) run() {
	limit := d.c.Config().MaxCycles
	pipe := d.c.Pipeline()

	for !pipe.Halted() {
		if limit > 0 && pipe.Cycle() >= limit {
			d.printf("Cycle limit %d reached\n", limit)
			return
		}

		d.c.Step()

		if pc := d.last[trace.StageIF].PC; d.breakpoints[pc] {
			d.printf("Breakpoint at 0x%08x, cycle %d\n", pc, pipe.Cycle()-1)
			d.showPipe()
			return
		}
	}

	d.reportHalt()
}

func (d *debugger) reportHalt() {
	if d.c.Halted() {
		d.printf("%s\n", core.ExitMessage(d.c.Pipeline().Result()))
	}
}

func (d *debugger) showPipe() {
	pipe := d.c.Pipeline()
	if pipe.Cycle() == 0 {
		d.printf("Not started; fetch at 0x%08x\n", pipe.PC())
		return
	}

	d.printf("cycle %d\n", pipe.Cycle()-1)
	for _, e := range d.last {
		d.printf("  %-2s 0x%08x  %-24s %s\n", e.Stage, e.PC, insts.Disassemble(e.Inst), e.Info)
	}

	if ctl := controlSummary(pipe.LastSignals()); ctl != "" {
		d.printf("  ctl %s\n", ctl)
	}
}

// controlSummary lists the hazards and forwarded operands of one cycle.
func controlSummary(sig pipeline.Signals) string {
	var parts []string
	if sig.LoadUse {
		parts = append(parts, "load-use stall")
	}
	if sig.Mispredict {
		parts = append(parts, "mispredict")
	}

	operands := []struct {
		name string
		src  pipeline.OperandSource
	}{
		{"op1", sig.Op1Src},
		{"op2", sig.Op2Src},
		{"rs2", sig.Rs2Src},
	}
	for _, op := range operands {
		if op.src.Forwarded() {
			parts = append(parts, op.name+"<-"+op.src.String())
		}
	}

	return strings.Join(parts, ", ")
}

func (d *debugger) showMemory(args []string) {
	if len(args) == 0 {
		d.printf("usage: mem <addr> [n]\n")
		return
	}

	addr, err := parseAddr(args[0])
	if err != nil {
		d.printf("%v\n", err)
		return
	}
	n, err := parseCount(args, 1)
	if err != nil {
		d.printf("%v\n", err)
		return
	}

	for i := uint64(0); i < n; i++ {
		a := addr + uint32(4*i)

		if w, ok := d.c.DMem().Word(a); ok {
			d.printf("0x%08x: 0x%08x\n", a, w)
			continue
		}
		if w, ok := d.c.IMem().Word(a); ok {
			d.printf("0x%08x: 0x%08x  %s\n", a, w, insts.Disassemble(w))
			continue
		}
		d.printf("0x%08x: <unmapped>\n", a)
	}
}

func (d *debugger) showBTB() {
	btb := d.c.Pipeline().BTB()
	entries := btb.Entries()

	d.printf("BTB: %d of %d entries valid (%d index bits)\n", len(entries), btb.Size(), btb.IndexBits())
	for _, e := range entries {
		d.printf("  [%2d] tag 0x%x  0x%08x -> 0x%08x\n", e.Index, e.Tag, e.PC, e.Target)
	}
}

func (d *debugger) setBreakpoint(args []string, set bool) {
	if len(args) == 0 {
		d.printf("usage: break <addr> | delete <addr>\n")
		return
	}

	addr, err := parseAddr(args[0])
	if err != nil {
		d.printf("%v\n", err)
		return
	}

	if set {
		d.breakpoints[addr] = true
		d.printf("Breakpoint set at 0x%08x\n", addr)
		return
	}

	if !d.breakpoints[addr] {
		d.printf("No breakpoint at 0x%08x\n", addr)
		return
	}
	delete(d.breakpoints, addr)
	d.printf("Breakpoint deleted at 0x%08x\n", addr)
}

func (d *debugger) showBreakpoints() {
	if len(d.breakpoints) == 0 {
		d.printf("No breakpoints\n")
		return
	}

	addrs := make([]uint32, 0, len(d.breakpoints))
	for a := range d.breakpoints {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	for _, a := range addrs {
		d.printf("  0x%08x\n", a)
	}
}
