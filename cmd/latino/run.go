package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chazu/latino/cache"
	"github.com/chazu/latino/compiler"
	"github.com/chazu/latino/vm"
)

const (
	sourceExt = ".lat"
	imageExt  = ".latc"
)

var errExtension = errors.New("El archivo no contiene la extension .lat")

// loadUnit reads a program from path: source files are compiled (through
// c when it is non-nil), image files are decoded.
func loadUnit(path string, c *cache.Cache) (*vm.Function, error) {
	ext := filepath.Ext(path)
	if ext != sourceExt && ext != imageExt {
		return nil, errExtension
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if ext == imageExt {
		fn, _, err := vm.UnmarshalImage(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return fn, nil
	}

	var fn *vm.Function
	if c != nil {
		fn, err = c.Compile(data)
	} else {
		fn, err = compiler.Analyze(string(data))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fn, nil
}

// runFile runs the program at path and returns the process exit code.
func runFile(path string, c *cache.Cache, stderr io.Writer, opts ...vm.Option) int {
	fn, err := loadUnit(path, c)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	v := vm.New(opts...)
	if _, _, err := v.Run(fn); err != nil {
		var exit *vm.ExitError
		if errors.As(err, &exit) {
			return exit.Code
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// handleRunCommand processes `latino run <file>` and `latino <file>`.
func handleRunCommand(p *project, path string) int {
	c := p.openCache()
	if c != nil {
		defer c.Close()
	}
	return runFile(path, c, os.Stderr, p.vmOptions()...)
}
