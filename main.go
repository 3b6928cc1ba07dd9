// Command ie64 loads a flat binary program image and runs it to completion
// against a single RAM device on the address bus.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: ie64 [options] <program-image>\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  ie64 output.bin\n")
	fmt.Fprintf(os.Stderr, "  ie64 -ram 4194304 -stats output.bin\n")
}

func main() {
	ramSize := flag.Uint64("ram", 1<<20, "RAM device size in bytes")
	stats := flag.Bool("stats", false, "print a one-line run summary on exit")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(1)
	}
	imagePath := flag.Arg(0)

	colorized := term.IsTerminal(int(os.Stdout.Fd()))

	bus := NewAddressBus()
	if err := bus.AddDevice(NewRAMDevice(*ramSize)); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	bus.Seal()

	if _, err := LoadProgram(bus, imagePath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	m := NewMachine(bus)
	m.Reset()

	banner := "IE64 core"
	if colorized {
		banner = "\x1b[1mIE64 core\x1b[0m"
	}
	fmt.Fprintf(os.Stderr, "%s: running %s\n", banner, imagePath)

	start := time.Now()
	runErr := m.Run()
	elapsed := time.Since(start).Seconds()

	fmt.Printf("Time taken: %f\n", elapsed)

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}

	if *stats {
		fmt.Printf("cycles=%d halted=%v\n", m.ClockCount(), m.Halted())
	}
}
