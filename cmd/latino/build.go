package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chazu/latino/cache"
	"github.com/chazu/latino/vm"
)

// handleBuildCommand processes `latino build <file.lat> [-o out.latc]`.
func handleBuildCommand(p *project, args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	output := fs.String("o", "", "Output image path (default: <file>.latc)")
	fs.Parse(reorderArgs(args, "o"))

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: latino build <file.lat> [-o out.latc]")
		os.Exit(1)
	}
	c := p.openCache()
	if c != nil {
		defer c.Close()
	}

	out, err := buildImage(fs.Arg(0), *output, c)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Wrote %s\n", out)
}

// buildImage compiles src and writes its image to out, which defaults to
// src with the image extension. It returns the path written.
func buildImage(src, out string, c *cache.Cache) (string, error) {
	if !strings.HasSuffix(src, sourceExt) {
		return "", errExtension
	}
	if out == "" {
		out = strings.TrimSuffix(src, sourceExt) + imageExt
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return "", err
	}
	fn, err := loadUnit(src, c)
	if err != nil {
		return "", err
	}
	image, err := vm.MarshalImage(fn, vm.HashSource(data))
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", src, err)
	}
	if err := os.WriteFile(out, image, 0o644); err != nil {
		return "", err
	}
	log.Infof("built %s (%d bytes)", out, len(image))
	return out, nil
}

// handleDisasmCommand processes `latino disasm <file>`.
func handleDisasmCommand(p *project, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: latino disasm <file.lat|file.latc>")
		os.Exit(1)
	}
	c := p.openCache()
	if c != nil {
		defer c.Close()
	}
	if err := disassembleFile(os.Stdout, args[0], c); err != nil {
		fatal(err)
	}
}

func disassembleFile(w io.Writer, path string, c *cache.Cache) error {
	fn, err := loadUnit(path, c)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, vm.DisassembleFunction(fn))
	return err
}

// reorderArgs moves the named value flags ahead of positional arguments so
// `latino build main.lat -o out.latc` parses like the flag-first form.
func reorderArgs(args []string, valueFlags ...string) []string {
	var flags, rest []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "-") || a == "-" {
			rest = append(rest, a)
			continue
		}
		flags = append(flags, a)
		name := strings.TrimLeft(a, "-")
		if strings.Contains(name, "=") {
			continue
		}
		for _, vf := range valueFlags {
			if name == vf && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		}
	}
	return append(flags, rest...)
}
