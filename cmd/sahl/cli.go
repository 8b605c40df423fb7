package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/abooishaaq/sahl/compiler"
	"github.com/abooishaaq/sahl/compiler/hash"
	"github.com/abooishaaq/sahl/manifest"
	"github.com/abooishaaq/sahl/server"
	"github.com/abooishaaq/sahl/store"
	"github.com/abooishaaq/sahl/vm"
)

var log = commonlog.GetLogger("sahl.cli")

// options holds the parsed command line.
type options struct {
	compile bool
	execute bool
	native  bool
	verbose bool

	output  string
	image   string
	serve   bool
	lsp     bool
	config  string
	noCache bool
	trace   bool

	file string
}

func newFlagSet(opts *options, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("sahl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&opts.compile, "c", false, "Compile to a bytecode image")
	fs.BoolVar(&opts.execute, "e", false, "Compile and execute")
	fs.BoolVar(&opts.native, "n", false, "Compile to native code (not available)")
	fs.BoolVar(&opts.verbose, "v", false, "Dump the AST and the disassembly")
	fs.StringVar(&opts.output, "o", "", "Output file for -c (default from sahl.toml, else exe.bin)")
	fs.StringVar(&opts.image, "run", "", "Execute a bytecode image written by -c")
	fs.BoolVar(&opts.serve, "serve", false, "Serve the toolchain over Connect and gRPC")
	fs.BoolVar(&opts.lsp, "lsp", false, "Run the language server on stdio")
	fs.StringVar(&opts.config, "config", "", "Path to sahl.toml (default: nearest one above the working directory)")
	fs.BoolVar(&opts.noCache, "no-cache", false, "Bypass the compiled program cache")
	fs.BoolVar(&opts.trace, "trace", false, "Log every executed instruction")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: sahl <filename> <-c|-e|-n> [-v]\n")
		fmt.Fprintf(stderr, "       sahl -run <image>\n")
		fmt.Fprintf(stderr, "       sahl -serve | -lsp\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  sahl fib.sahl -e          # Compile and run\n")
		fmt.Fprintf(stderr, "  sahl fib.sahl -c -o fib   # Write a bytecode image\n")
		fmt.Fprintf(stderr, "  sahl -run fib             # Run the image\n")
		fmt.Fprintf(stderr, "  sahl script.star -e       # Starlark syntax\n")
	}
	return fs
}

// parseArgs accepts flags before and after the file name.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

// errUsage reports a command line that names no valid action.
var errUsage = errors.New("usage")

// run executes the command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := newFlagSet(&opts, stderr)
	positional, err := parseArgs(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if len(positional) > 1 {
		fmt.Fprintf(stderr, "Error: expected one file, got %d\n", len(positional))
		return 2
	}
	if len(positional) == 1 {
		opts.file = positional[0]
	}

	m, err := loadManifest(opts.config)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	configureLogging(m, opts.trace)

	if err := dispatch(&opts, m, stdout, stderr); err != nil {
		if errors.Is(err, errUsage) {
			fs.Usage()
			return 2
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func loadManifest(path string) (*manifest.Manifest, error) {
	if path == "" {
		return manifest.FindAndLoad(".")
	}
	if filepath.Base(path) == manifest.FileName {
		path = filepath.Dir(path)
	}
	return manifest.Load(path)
}

func configureLogging(m *manifest.Manifest, trace bool) {
	verbosity := m.Log.Verbosity
	if trace && verbosity < 2 {
		verbosity = 2
	}
	var path *string
	if m.Log.File != "" {
		file := m.Resolve(m.Log.File)
		path = &file
	}
	commonlog.Configure(verbosity, path)
}

func dispatch(opts *options, m *manifest.Manifest, stdout, stderr io.Writer) error {
	switch {
	case opts.lsp:
		return server.NewLSP().Run()
	case opts.serve:
		return serve(opts, m)
	case opts.image != "":
		return runImage(opts, m, stdout)
	}

	if opts.file == "" {
		opts.file = m.EntryPath()
	}
	if opts.file == "" || !(opts.compile || opts.execute || opts.native) {
		return errUsage
	}
	if opts.native {
		return errors.New("native code generation is not available; use -c or -e")
	}

	src, err := os.ReadFile(opts.file)
	if err != nil {
		return err
	}
	prog, err := build(opts, m, src, stdout)
	if err != nil {
		return err
	}

	if opts.compile {
		out := opts.output
		if out == "" {
			out = m.OutputPath()
		}
		if err := vm.WriteImage(prog, out); err != nil {
			return err
		}
		log.Info("image written", "path", out, "instructions", len(prog.Code))
	}
	if opts.execute {
		return execute(prog, opts, m, stdout)
	}
	return nil
}

// build parses, checks, and compiles src, going through the program cache
// when one is configured.
func build(opts *options, m *manifest.Manifest, src []byte, stdout io.Writer) (*vm.Program, error) {
	ast, typed, err := compiler.ParseSource(opts.file, src, compiler.FrontendAuto)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opts.file, err)
	}
	if opts.verbose {
		fmt.Fprint(stdout, compiler.Dump(ast))
	}
	if err := compiler.Check(ast, !typed); err != nil {
		return nil, fmt.Errorf("%s: %w", opts.file, err)
	}
	if opts.verbose {
		fmt.Fprintln(stdout, "Program is well-typed")
	}

	st := openStore(opts, m)
	if st != nil {
		defer st.Close()
	}
	key := hash.Program(ast).String()

	var prog *vm.Program
	if st != nil {
		if entry, err := st.Get(key); err == nil {
			log.Debug("cache hit", "file", opts.file, "hash", key)
			prog = entry.Program
		}
	}
	if prog == nil {
		prog, err = compiler.Compile(ast)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", opts.file, err)
		}
		if st != nil {
			if err := st.Put(key, opts.file, prog); err != nil {
				log.Warning("cache write failed", "error", err.Error())
			}
		}
	}

	if opts.verbose {
		fmt.Fprint(stdout, vm.Disassemble(prog))
	}
	return prog, nil
}

// openStore returns nil when caching is off or the store cannot be opened.
func openStore(opts *options, m *manifest.Manifest) *store.Store {
	path := m.CachePath()
	if opts.noCache || path == "" {
		return nil
	}
	st, err := store.Open(path)
	if err != nil {
		log.Warning("cache unavailable", "path", path, "error", err.Error())
		return nil
	}
	return st
}

func vmOptions(opts *options, m *manifest.Manifest, stdout io.Writer) []vm.Option {
	vmOpts := []vm.Option{
		vm.WithOutput(stdout),
		vm.WithLimits(m.VM.MaxStack, m.VM.MaxFrames),
	}
	if !m.VerifyEnabled() {
		vmOpts = append(vmOpts, vm.WithoutVerify())
	}
	if opts.trace || m.VM.Trace {
		vmOpts = append(vmOpts, vm.WithTrace(func(offset int, in vm.Instruction, stack []vm.Value) {
			log.Debug(vm.DisassembleInstruction(offset, in), "depth", len(stack))
		}))
	}
	return vmOpts
}

func execute(prog *vm.Program, opts *options, m *manifest.Manifest, stdout io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	_, err := vm.Run(ctx, prog, vmOptions(opts, m, stdout)...)
	return err
}

func runImage(opts *options, m *manifest.Manifest, stdout io.Writer) error {
	prog, err := vm.ReadImage(opts.image)
	if err != nil {
		return err
	}
	if opts.verbose {
		fmt.Fprint(stdout, vm.Disassemble(prog))
	}
	return execute(prog, opts, m, stdout)
}

func serve(opts *options, m *manifest.Manifest) error {
	st := openStore(opts, m)
	if st != nil {
		defer st.Close()
	}
	srv := server.New(server.Config{
		Store: st,
		RunnerOptions: []server.RunnerOption{
			server.WithRunLimits(m.VM.MaxStack, m.VM.MaxFrames),
			server.WithVerify(m.VerifyEnabled()),
		},
		Trace: opts.trace || m.VM.Trace,
	})
	defer srv.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	log.Notice("serving", "http", m.Server.HTTPAddr, "grpc", m.Server.GRPCAddr,
		"project", strings.TrimSpace(m.Project.Name))
	return srv.ListenAndServe(ctx, m.Server.HTTPAddr, m.Server.GRPCAddr)
}
