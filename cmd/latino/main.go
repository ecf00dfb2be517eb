// latino CLI - runs latino programs, hosts the REPL and the eval server
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/latino/cache"
	"github.com/chazu/latino/manifest"
	"github.com/chazu/latino/vm"
)

const version = "0.3.0"

var log = commonlog.GetLogger("latino.cli")

// project is the configuration every subcommand starts from: the nearest
// latino.toml (or the defaults) plus command-line overrides.
type project struct {
	manifest *manifest.Manifest
	trace    bool
	noCache  bool
}

func (p *project) vmOptions(extra ...vm.Option) []vm.Option {
	opts := p.manifest.VMOptions()
	if p.trace {
		opts = append(opts, vm.WithTrace(true))
	}
	return append(opts, extra...)
}

// openCache opens the compiled-unit cache, or returns nil when caching is
// off or the cache cannot be opened.
func (p *project) openCache() *cache.Cache {
	if p.noCache || !p.manifest.Cache.Enabled {
		return nil
	}
	c, err := cache.Open(p.manifest.CachePath())
	if err != nil {
		log.Warningf("cache disabled: %v", err)
		return nil
	}
	return c
}

func main() {
	showVersion := flag.Bool("v", false, "Muestra la version de Latino")
	help := flag.Bool("a", false, "Muestra la ayuda de Latino")
	interactive := flag.Bool("i", false, "Inicia el interprete de Latino (modo interactivo)")
	verbosity := flag.Int("verbose", 0, "Log verbosity (0 errors only, 4 debug)")
	trace := flag.Bool("trace", false, "Log every executed instruction (needs -verbose 4)")
	noCache := flag.Bool("no-cache", false, "Compile without the build cache")

	flag.Usage = usage
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	if *showVersion {
		printVersion()
		return
	}
	if *help {
		usage()
		return
	}

	p, err := loadProject()
	if err != nil {
		fatal(err)
	}
	p.trace = *trace
	p.noCache = *noCache

	args := flag.Args()
	if *interactive || len(args) == 0 {
		printVersion()
		if err := runLocalREPL(p); err != nil {
			fatal(err)
		}
		return
	}

	switch args[0] {
	case "run":
		path := p.manifest.EntryPath()
		if len(args) > 1 {
			path = args[1]
		}
		os.Exit(handleRunCommand(p, path))
	case "build":
		handleBuildCommand(p, args[1:])
	case "disasm":
		handleDisasmCommand(p, args[1:])
	case "serve":
		handleServeCommand(p, args[1:])
	case "cache":
		handleCacheCommand(p, args[1:])
	case "lsp":
		handleLSPCommand()
	case "remote":
		handleRemoteCommand(args[1:])
	default:
		os.Exit(handleRunCommand(p, args[0]))
	}
}

func loadProject() (*project, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	m, err := manifest.FindAndLoad(wd)
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	if m == nil {
		m = manifest.Default(wd)
	}
	return &project{manifest: m}, nil
}

func printVersion() {
	fmt.Printf("Latino %s\n", version)
}

func usage() {
	printVersion()
	fmt.Fprintf(os.Stderr, "Uso de latino: latino [opcion] [archivo]\n\n")
	fmt.Fprintf(os.Stderr, "Opciones:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nArchivo:\n")
	fmt.Fprintf(os.Stderr, "  archivo.lat            Nombre del archivo con extension .lat\n")
	fmt.Fprintf(os.Stderr, "  archivo.latc           Unidad compilada con latino build\n")
	fmt.Fprintf(os.Stderr, "\nComandos:\n")
	fmt.Fprintf(os.Stderr, "  latino run [main.lat]            # Run a program (default: the manifest entry)\n")
	fmt.Fprintf(os.Stderr, "  latino build main.lat -o m.latc  # Compile to an image\n")
	fmt.Fprintf(os.Stderr, "  latino disasm main.lat           # Show bytecode\n")
	fmt.Fprintf(os.Stderr, "  latino cache stats|prune|clear   # Maintain the build cache\n")
	fmt.Fprintf(os.Stderr, "  latino serve                     # Start the eval server\n")
	fmt.Fprintf(os.Stderr, "  latino lsp                       # Start the language server on stdio\n")
	fmt.Fprintf(os.Stderr, "  latino remote -addr host:4568    # REPL against a running server\n")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
