package util

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

type Options struct {
	Src        string // Path to the annotated syntax tree (JSON). Empty means stdin.
	Out        string // Path to output file.
	Config     string // Path to TOML configuration file.
	Threads    int    // Thread count used for per-fragment register allocation.
	Registers  int    // Number of physical registers handed to the register allocator.
	Phase      int    // Last compiler phase to run; the result of that phase is dumped.
	Traces     bool   // Set true if basic blocks should be chained into traces.
	BinopTemps bool   // Set true if every binary operand is evaluated into a temporary first.
	StackBase  int    // SETH immediate used for the initial frame pointer.
	HeapBase   int    // SETH immediate used for the initial heap pointer.
	JSON       bool   // Set true if liveness and allocation dumps should be JSON.
	Verbose    bool   // Set true if compiler should log phase statistics to stderr.
	LogLevel   string // Explicit zap log level, overrides Verbose.
}

// ---------------------
// ----- Constants -----
// ---------------------

const maxThreads = 64 // Maximum threads allowed executing in parallel.
const appVersion = "prev compiler 1.0"

// minRegisters is the smallest palette that can hold the operands of any single instruction.
const minRegisters = 2

// maxRegisters is the first global register; SP, FP and HP live at $250-$252.
const maxRegisters = 250

// Compiler phases, in pipeline order.
const (
	PhaseFrames = iota
	PhaseImcGen
	PhaseLinCode
	PhaseAsmGen
	PhaseLiveness
	PhaseRegAlloc
	PhaseFinalize
)

// phaseNames maps command line phase identifiers to phases.
var phaseNames = map[string]int{
	"frames":   PhaseFrames,
	"imcgen":   PhaseImcGen,
	"lincode":  PhaseLinCode,
	"asmgen":   PhaseAsmGen,
	"liveness": PhaseLiveness,
	"regalloc": PhaseRegAlloc,
	"finalize": PhaseFinalize,
}

// ---------------------
// ----- functions -----
// ---------------------

// DefaultOptions returns the compiler defaults before any configuration file, environment variable or flag is
// applied.
func DefaultOptions() Options {
	return Options{
		Threads:    1,
		Registers:  8,
		Phase:      PhaseFinalize,
		Traces:     true,
		BinopTemps: true,
		StackBase:  16384,
		HeapBase:   16384,
	}
}

// PhaseName returns the command line identifier of phase p.
func PhaseName(p int) string {
	for k, v := range phaseNames {
		if v == p {
			return k
		}
	}
	return fmt.Sprintf("phase(%d)", p)
}

// ParseArgs parses command line arguments. Precedence, lowest first: defaults, configuration file, environment,
// command line flags.
func ParseArgs() (Options, error) {
	return parseArgs(os.Args[1:])
}

// parseArgs does the work of ParseArgs on an explicit argument slice.
func parseArgs(args []string) (Options, error) {
	opt := DefaultOptions()

	// The configuration file must be loaded before flags are applied on top of it.
	for i1 := 0; i1 < len(args)-1; i1++ {
		if args[i1] == "-config" {
			opt.Config = args[i1+1]
		}
	}
	if len(opt.Config) > 0 {
		cfg, err := LoadConfig(opt.Config)
		if err != nil {
			return opt, err
		}
		cfg.Apply(&opt)
	}
	ApplyEnv(&opt)

	for i1 := 0; i1 < len(args); i1++ {
		switch args[i1] {
		case "-h", "--h", "-help", "--help":
			// Help and usage.
			printHelp()
			os.Exit(0)
		case "-v", "--v", "-version", "--version":
			// Application version.
			fmt.Println(appVersion)
			os.Exit(0)
		case "-vb":
			// Verbose mode.
			opt.Verbose = true
		case "-json":
			opt.JSON = true
		case "-notrace":
			opt.Traces = false
		case "-o", "-t", "-k", "-phase", "-config":
			if i1+1 >= len(args) {
				return opt, fmt.Errorf("got flag %s but no argument", args[i1])
			}
			if strings.HasPrefix(args[i1+1], "-") {
				return opt, fmt.Errorf("expected argument to flag %s, got new flag %s", args[i1], args[i1+1])
			}
			switch args[i1] {
			case "-o":
				// Output file.
				opt.Out = args[i1+1]
			case "-t":
				// Thread count.
				t, err := strconv.Atoi(args[i1+1])
				if err != nil {
					return opt, fmt.Errorf("expected integer thread count, got: %s", args[i1+1])
				}
				opt.Threads = t
			case "-k":
				// Register count.
				k, err := strconv.Atoi(args[i1+1])
				if err != nil {
					return opt, fmt.Errorf("expected integer register count, got: %s", args[i1+1])
				}
				opt.Registers = k
			case "-phase":
				p, ok := phaseNames[args[i1+1]]
				if !ok {
					return opt, fmt.Errorf("unexpected phase identifier: %s", args[i1+1])
				}
				opt.Phase = p
			case "-config":
				// Already loaded.
			}
			i1++
		default:
			if strings.HasPrefix(args[i1], "-") {
				return opt, fmt.Errorf("unexpected flag: %s", args[i1])
			}
			if i1 != len(args)-1 {
				return opt, fmt.Errorf("source file must be the last argument, got: %s", args[i1])
			}
			opt.Src = args[i1]
		}
	}
	return opt, opt.Validate()
}

// Validate checks that the numerical options are within range.
func (opt Options) Validate() error {
	if opt.Threads < 1 || opt.Threads > maxThreads {
		return fmt.Errorf("thread count must be integer in range [1, %d]", maxThreads)
	}
	if opt.Registers < minRegisters || opt.Registers >= maxRegisters {
		return fmt.Errorf("register count must be integer in range [%d, %d]", minRegisters, maxRegisters-1)
	}
	if opt.Phase < PhaseFrames || opt.Phase > PhaseFinalize {
		return fmt.Errorf("unexpected phase %d", opt.Phase)
	}
	if opt.StackBase < 0 || opt.StackBase > 0xffff || opt.HeapBase < 0 || opt.HeapBase > 0xffff {
		return fmt.Errorf("stack and heap base must be 16-bit SETH immediates")
	}
	return nil
}

// printHelp prints a helpful usage message to stdout.
func printHelp() {
	w := tabwriter.NewWriter(os.Stdout, 6, 1, 1, 0, 0)
	_, _ = fmt.Fprintln(w, "Usage: prevc [flags] [file.json]")
	_, _ = fmt.Fprintln(w, "-h, -help\tPrints this help message and exits the application.")
	_, _ = fmt.Fprintln(w, "--h, --help")
	_, _ = fmt.Fprintln(w, "-config\tPath to a TOML configuration file.")
	_, _ = fmt.Fprintln(w, "-json\tDump liveness and register allocation results as JSON.")
	_, _ = fmt.Fprintf(w, "-k\tNumber of physical registers. Must be in range [%d, %d].\n", minRegisters, maxRegisters-1)
	_, _ = fmt.Fprintln(w, "-notrace\tDo not chain basic blocks into traces.")
	_, _ = fmt.Fprintln(w, "-o\tPath and name of the output file.")
	_, _ = fmt.Fprintln(w, "-phase\tStop after phase and dump its result: frames, imcgen, lincode, asmgen, liveness, regalloc or finalize.")
	_, _ = fmt.Fprintf(w, "-t\tNumber of threads to run in parallel. Must be in range [1, %d].\n", maxThreads)
	_, _ = fmt.Fprintln(w, "-v, -version\tPrints application version and exits the application.")
	_, _ = fmt.Fprintln(w, "--v, --version")
	_, _ = fmt.Fprintln(w, "-vb\tVerbose mode: log compiler statistics to stderr.")
	_ = w.Flush()
}
