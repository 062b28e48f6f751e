// cmd/runcom - loads a .COM/MZ executable and runs it to completion (or
// a frame/instruction budget), printing the final register snapshot.
//
// CLI handling follows the teacher's cmd/ie32to64 convention: stdlib
// flag, no cobra/viper despite cobra being available elsewhere in the
// example pool (SPEC_FULL.md §2).
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later
package main

import (
	"flag"
	"fmt"
	"os"

	x86core "github.com/zaynotley/x86core"
)

func main() {
	frames := flag.Int("frames", 1, "number of video frames to execute (0 runs until halt or fatal error)")
	maxInstructions := flag.Int("max-instructions", 10_000_000, "hard instruction cap when -frames=0")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: runcom [-frames N] [-max-instructions N] <program>")
		os.Exit(2)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "runcom: %v\n", err)
		os.Exit(1)
	}

	m := x86core.New()
	if err := m.LoadExecutable(data); err != nil {
		fmt.Fprintf(os.Stderr, "runcom: %v\n", err)
		os.Exit(1)
	}

	if *frames > 0 {
		for i := 0; i < *frames; i++ {
			if m.Exec.FatalError || m.Exec.Halted {
				break
			}
			m.ExecuteFrame()
		}
	} else {
		m.ExecuteInstructions(*maxInstructions)
	}

	r := m.RegisterSnapshot()
	fmt.Printf("AX=%04X CX=%04X DX=%04X BX=%04X SP=%04X BP=%04X SI=%04X DI=%04X\n",
		r.Reg16(x86core.RegAX), r.Reg16(x86core.RegCX), r.Reg16(x86core.RegDX), r.Reg16(x86core.RegBX),
		r.Reg16(x86core.RegSP), r.Reg16(x86core.RegBP), r.Reg16(x86core.RegSI), r.Reg16(x86core.RegDI))
	fmt.Printf("CS=%04X IP=%04X SS=%04X DS=%04X ES=%04X FLAGS=%04X\n",
		r.Seg(x86core.SegCS), r.IP(), r.Seg(x86core.SegSS), r.Seg(x86core.SegDS), r.Seg(x86core.SegES), r.Flags())

	if m.Exec.FatalError {
		fmt.Fprintln(os.Stderr, "runcom: halted on fatal error (decode invalid or unimplemented opcode)")
		os.Exit(1)
	}
}
