package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/fzipp/zil-compiler/config"
	"github.com/fzipp/zil-compiler/diag"
	"github.com/fzipp/zil-compiler/zilp"
	"github.com/fzipp/zil-compiler/zils"
)

func usage() {
	printVersion()
	fail(`
Compiles ZIL programs, given as IR dumps (.zir), to Z-machine assembly
source (.zap) for a ZAP assembler.

Usage:
    zilc [-c zilc.yaml] [-o out.zap] [-v] [-progress] file...

Flags:
    -c         Reads project settings from this file instead of the
               zilc.yaml found next to the first input or above it.
    -o         Writes the assembly to this file. Defaults to the first
               input with the extension .zap.
    -v         Logs the compiler passes.
    -progress  Shows the progress of routine compilation.

Examples:
    zilc zork1.zir
    zilc -o story.zap -v globals.zir rooms.zir actions.zir`)
}

func main() {
	cfgPath := flag.String("c", "", "project file")
	out := flag.String("o", "", "output file")
	verbose := flag.Bool("v", false, "log compiler passes")
	progress := flag.Bool("progress", false, "show routine compilation progress")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	if *verbose {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	printVersion()
	cfg, err := loadConfig(*cfgPath, flag.Arg(0))
	check(err)

	var nodes []zils.Node
	for _, arg := range flag.Args() {
		n, err := readFile(arg)
		check(err)
		nodes = append(nodes, n...)
	}

	rep := diag.NewReporter(os.Stderr)
	rep.MaxMessages = cfg.MaxErrors
	opts := zilp.Options{
		Config:   cfg,
		Reporter: rep,
		Logger:   slog.Default(),
		Name:     storyName(flag.Arg(0)),
	}
	var bar *progressbar.ProgressBar
	if *progress {
		opts.Progress = func(done, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetDescription("routines"),
					progressbar.OptionClearOnFinish())
			}
			_ = bar.Set(done)
		}
	}

	im, err := zilp.Compile(nodes, opts)
	if bar != nil {
		_ = bar.Finish()
	}
	fmt.Fprintln(os.Stderr, rep.Summary())
	check(err)

	path := *out
	if path == "" {
		path = strings.TrimSuffix(flag.Arg(0), filepath.Ext(flag.Arg(0))) + ".zap"
	}
	check(writeFile(path, im.WriteZAP))
}

func loadConfig(path, firstInput string) (*config.Config, error) {
	if path == "" {
		found, err := config.FindConfig(filepath.Dir(firstInput))
		if err != nil {
			return nil, err
		}
		if found == "" {
			return config.Default(), nil
		}
		path = found
	}
	return config.LoadConfig(path)
}

func readFile(path string) ([]zils.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return zils.Read(f, path)
}

func writeFile(path string, write func(w io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f)
}

func storyName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func printVersion() {
	fmt.Fprintln(os.Stderr, "ZIL Compiler  2026; Z-machine versions 3 to 8")
}

func check(err error) {
	if err != nil {
		fail(err)
	}
}

func fail(msg any) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
