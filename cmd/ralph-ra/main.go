package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/raymyers/ralph-ra/pkg/asm"
	"github.com/raymyers/ralph-ra/pkg/compile"
	"github.com/raymyers/ralph-ra/pkg/diag"
	"github.com/raymyers/ralph-ra/pkg/ir"
	"github.com/raymyers/ralph-ra/pkg/regalloc"
	"github.com/raymyers/ralph-ra/pkg/stacking"
	"github.com/raymyers/ralph-ra/pkg/target"
	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

var version = "0.1.0"

// Debug flags for dumping intermediate results
var (
	dIR    bool
	dAlloc bool
	dAsm   bool
)

// Allocation options
var (
	targetFile string
	modeFlag   string
	jobs       int
	staticBase int
	staticSize int
	frameLimit int
	verbose    bool
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	// Accept single-dash debug flags (-dasm) as well as --dasm
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// debugFlagNames lists the debug flags that also accept single-dash style
var debugFlagNames = []string{"dir", "dalloc", "dasm"}

// normalizeFlags converts single-dash debug flags like -dasm to --dasm
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		for _, flagName := range debugFlagNames {
			if arg == "-"+flagName {
				result[i] = "--" + flagName
				break
			}
		}
		if result[i] == "" {
			result[i] = arg
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ralph-ra [file.yaml]",
		Short: "ralph-ra allocates registers for R8/16 IR modules",
		Long: `ralph-ra reads an IR module, gives every variable a register,
frame slot or static address on the R8/16 CPU and writes the
resulting assembly next to the input (file.yaml -> file.s).`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return doCompile(args[0], out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().BoolVarP(&dIR, "dir", "", false, "Dump the input IR")
	rootCmd.Flags().BoolVarP(&dAlloc, "dalloc", "", false, "Dump allocation results")
	rootCmd.Flags().BoolVarP(&dAsm, "dasm", "", false, "Dump assembly")

	rootCmd.Flags().StringVarP(&targetFile, "target", "t", env.Str("RALPHRA_TARGET"), "Target description (YAML)")
	rootCmd.Flags().StringVar(&modeFlag, "mode", env.Str("RALPHRA_MODE", "auto"), "Interference mode: auto, exact, block-conservative")
	rootCmd.Flags().IntVarP(&jobs, "jobs", "j", env.Int("RALPHRA_JOBS", 1), "Functions allocated concurrently")
	rootCmd.Flags().IntVar(&staticBase, "static-base", env.Int("RALPHRA_STATIC_BASE", -1), "Override the static spill area base address")
	rootCmd.Flags().IntVar(&staticSize, "static-size", env.Int("RALPHRA_STATIC_SIZE", -1), "Override the static spill area size in bytes")
	rootCmd.Flags().IntVar(&frameLimit, "frame-limit", env.Int("RALPHRA_FRAME_LIMIT", -1), "Override the largest FP displacement used for spills")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", env.Bool("RALPHRA_VERBOSE"), "Log allocation events")

	return rootCmd
}

// buildOptions creates compile.Options from CLI flags
func buildOptions(errOut io.Writer) (compile.Options, error) {
	var opts compile.Options

	t := target.Default()
	if targetFile != "" {
		var err error
		if t, err = target.LoadFile(targetFile); err != nil {
			return opts, err
		}
	}
	if staticBase >= 0 {
		t.StaticBase = staticBase
	}
	if staticSize >= 0 {
		t.StaticSize = staticSize
	}
	if frameLimit >= 0 {
		t.FrameLimit = frameLimit
	}
	opts.Target = t

	mode, ok := regalloc.ParseMode(modeFlag)
	if !ok {
		return opts, errors.New("unknown mode %q", modeFlag)
	}
	opts.Mode = mode
	opts.Jobs = jobs

	if verbose {
		opts.Logger = tlog.New(tlog.NewConsoleWriter(errOut, tlog.LstdFlags))
	}
	return opts, nil
}

// doCompile loads, allocates and emits one module
func doCompile(filename string, out, errOut io.Writer) error {
	module, err := ir.LoadFile(filename)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-ra: %v\n", err)
		return err
	}

	if dIR {
		ir.NewPrinter(out).PrintModule(module)
	}

	opts, err := buildOptions(errOut)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-ra: %v\n", err)
		return err
	}

	result, err := compile.Module(module, opts)
	if err != nil {
		if errors.Is(err, stacking.ErrSpillExhaustion) {
			fmt.Fprintf(errOut, "ralph-ra: error: %v\n", err)
		} else {
			fmt.Fprintf(errOut, "ralph-ra: %v\n", err)
		}
		return err
	}

	for _, w := range result.Warnings() {
		printDiagnostic(errOut, w)
	}

	if dAlloc {
		printAllocation(out, result)
	}

	outputFilename := asmOutputFilename(filename)
	outFile, err := os.Create(outputFilename)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-ra: error creating %s: %v\n", outputFilename, err)
		return err
	}
	defer outFile.Close()

	asm.NewPrinter(outFile).PrintProgram(result.Program)

	if dAsm {
		asm.NewPrinter(out).PrintProgram(result.Program)
	}
	return nil
}

func printDiagnostic(w io.Writer, d diag.Diagnostic) {
	fmt.Fprintf(w, "ralph-ra: %s\n", d)
}

// printAllocation dumps mode, pools, locations and frame size per function
func printAllocation(w io.Writer, result *compile.Result) {
	for _, fr := range result.Functions {
		fmt.Fprintf(w, "function %s: mode=%s ordering=%s frame=%d\n", fr.Name, fr.Mode, fr.Ordering, fr.MaxFrameBytes)
		for _, class := range []ir.Class{ir.Narrow, ir.Wide} {
			fmt.Fprintf(w, "  pool %s: %s\n", class, strings.Join(fr.Context.Pools[class], " "))
		}
		names := make([]string, 0, len(fr.Locations))
		for name := range fr.Locations {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %s -> %s\n", name, fr.Locations[name])
		}
		if spilled := fr.Context.Spilled(); len(spilled) > 0 {
			fmt.Fprintf(w, "  spilled: %s\n", strings.Join(spilled, " "))
		}
		if len(fr.Emergency) > 0 {
			fmt.Fprintf(w, "  emergency: %s\n", strings.Join(fr.Emergency, " "))
		}
	}
}

// asmOutputFilename returns the output filename: input.yaml -> input.s
func asmOutputFilename(filename string) string {
	for _, ext := range []string{".yaml", ".yml"} {
		if strings.HasSuffix(filename, ext) {
			return filename[:len(filename)-len(ext)] + ".s"
		}
	}
	return filename + ".s"
}
