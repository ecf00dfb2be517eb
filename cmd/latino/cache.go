package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chazu/latino/cache"
)

// handleCacheCommand processes `latino cache stats|prune|clear`.
func handleCacheCommand(p *project, args []string) {
	c, err := cache.Open(p.manifest.CachePath())
	if err != nil {
		fatal(err)
	}
	defer c.Close()

	if err := runCacheCommand(c, args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Usage: latino cache stats | prune [-older 168h] | clear")
		c.Close()
		os.Exit(1)
	}
}

func runCacheCommand(c *cache.Cache, args []string, w io.Writer) error {
	if len(args) == 0 {
		return errors.New("cache requires a subcommand")
	}

	switch args[0] {
	case "stats":
		n, err := c.Len()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %d units\n", c.Path(), n)

	case "prune":
		fs := flag.NewFlagSet("cache prune", flag.ContinueOnError)
		fs.SetOutput(w)
		older := fs.Duration("older", 7*24*time.Hour, "Remove units compiled longer ago than this")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		n, err := c.Prune(time.Now().Add(-*older))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Removed %d units\n", n)

	case "clear":
		if err := c.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(w, "Cache cleared")

	default:
		return fmt.Errorf("unknown cache subcommand %q", args[0])
	}
	return nil
}
