package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"prevc/src/backend"
	"prevc/src/frontend"
	"prevc/src/ir"
	"prevc/src/util"
)

func main() {
	// Parse command line arguments.
	opt, err := util.ParseArgs()
	if err != nil {
		fmt.Printf("Command line argument error: %s\n", err)
		os.Exit(1)
	}

	log, err := util.NewLogger(opt)
	if err != nil {
		fmt.Printf("Could not create logger: %s\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(opt, log); err != nil {
		log.Error(failure(err), zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

// run compiles the syntax tree named by opt and writes the result.
func run(opt util.Options, log *zap.Logger) error {
	// Read the annotated syntax tree.
	src, err := util.ReadSource(opt)
	if err != nil {
		return fmt.Errorf("could not read syntax tree: %w", err)
	}
	prog, err := frontend.Decode(src)
	if err != nil {
		return err
	}
	if err := ir.Validate(prog); err != nil {
		return err
	}

	// Compile and write the program, or the dump of the last phase.
	w := util.Writer{}
	warnings, err := backend.Compile(&w, prog, opt, log)
	if err != nil {
		return err
	}
	if util.IsClass(warnings, util.Linkage) {
		log.Info("compiled with linkage warnings", zap.Error(warnings))
	}
	return util.WriteOutput(opt, w.String())
}

// failure names the class of a fatal error.
func failure(err error) string {
	switch {
	case util.IsClass(err, util.FrontEnd):
		return "malformed syntax tree"
	case util.IsClass(err, util.Internal):
		return "internal compiler error"
	default:
		return "compilation failed"
	}
}
