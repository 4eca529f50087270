package core

import (
	"fmt"
	"io"
	"strings"

	"github.com/yanghyeonseo/ca-pa4/emu"
	"github.com/yanghyeonseo/ca-pa4/timing/cache"
	"github.com/yanghyeonseo/ca-pa4/timing/pipeline"
	"github.com/yanghyeonseo/ca-pa4/trace"
)

// ExitMessage describes why a run stopped.
func ExitMessage(res pipeline.Result) string {
	switch res.Reason {
	case pipeline.ExitBreak:
		return fmt.Sprintf("Execution completed by ebreak at 0x%08x", res.PC)
	case pipeline.ExitMaxCycles:
		return fmt.Sprintf("Cycle limit reached at cycle %d (pc 0x%08x)", res.Cycles, res.PC)
	case pipeline.ExitFault:
		switch exc := res.Exception; {
		case exc.Has(pipeline.ExcIMemError):
			return fmt.Sprintf("Exception: instruction memory fault at 0x%08x", res.PC)
		case exc.Has(pipeline.ExcIllegalInst):
			return fmt.Sprintf("Exception: illegal instruction at 0x%08x", res.PC)
		case exc.Has(pipeline.ExcDMemError):
			return fmt.Sprintf("Exception: data memory fault at 0x%08x", res.PC)
		}
		return fmt.Sprintf("Exception: %s at 0x%08x", res.Exception, res.PC)
	}
	return "Running"
}

// Report prints the end-of-run output for the configured trace level: the
// register file from level 1 and the run summary from level 2.
func (c *Core) Report(w io.Writer, res pipeline.Result) {
	level := trace.Level(c.cfg.Trace.Level)

	if level >= trace.LevelRegs {
		_, _ = fmt.Fprint(w, c.regFile.Dump())
	}
	if level >= trace.LevelSummary {
		c.WriteSummary(w, res)
	}
}

// WriteSummary prints the exit reason and the run statistics.
func (c *Core) WriteSummary(w io.Writer, res pipeline.Result) {
	s := c.Stats()

	_, _ = fmt.Fprintln(w, ExitMessage(res))
	_, _ = fmt.Fprintf(w, "%d instructions executed in %d cycles. CPI = %.3f\n",
		s.Instructions, s.Cycles, s.CPI())
	_, _ = fmt.Fprintf(w, "Stalls: %d, flushes: %d, forwards: %d (ex %d, mm %d, wb %d)\n",
		s.Stalls, s.Flushes, s.Forwards(), s.ForwardsEX, s.ForwardsMM, s.ForwardsWB)
	_, _ = fmt.Fprintf(w, "Branches: %d, accuracy: %.2f%%, BTB hits: %d, adds: %d, removes: %d\n",
		s.Branches, 100*s.BranchAccuracy(), s.BTBHits, s.BTBAdds, s.BTBRemoves)

	if s.CacheEnabled {
		printCache(w, "I-cache", s.ICache)
		printCache(w, "D-cache", s.DCache)
	}
}

func printCache(w io.Writer, name string, s cache.Statistics) {
	_, _ = fmt.Fprintf(w, "%s: %d accesses, %d hits, %d misses (%.2f%% hit), %d evictions, %d writebacks\n",
		name, s.Accesses(), s.Hits, s.Misses, 100*s.HitRate(), s.Evictions, s.Writebacks)
}

// dumpCycle prints the per-cycle state dumps of levels 5 and 6.
func (c *Core) dumpCycle(cycle uint64) {
	level := trace.Level(c.cfg.Trace.Level)
	if level < trace.LevelRegsEach || cycle < c.cfg.Trace.StartCycle {
		return
	}

	_, _ = fmt.Fprint(c.out, c.regFile.Dump())
	if level >= trace.LevelMemoryEach {
		_, _ = fmt.Fprint(c.out, DumpMemory(c.dmem))
	}
}

// DumpMemory lists every non-zero word of m, four per line.
func DumpMemory(m *emu.Memory) string {
	var sb strings.Builder

	n := 0
	for addr := uint64(m.Base()); addr+4 <= uint64(m.Base())+uint64(m.Size()); addr += 4 {
		w, _ := m.Word(uint32(addr))
		if w == 0 {
			continue
		}
		fmt.Fprintf(&sb, "0x%08x: 0x%08x", addr, w)
		n++
		if n%4 == 0 {
			sb.WriteByte('\n')
		} else {
			sb.WriteString("    ")
		}
	}
	if n%4 != 0 {
		sb.WriteByte('\n')
	}

	return sb.String()
}
