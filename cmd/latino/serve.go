package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chazu/latino/client"
	"github.com/chazu/latino/manifest"
	"github.com/chazu/latino/server"
)

// handleServeCommand processes `latino serve [-addr :4567] [-grpc-addr :4568]`.
func handleServeCommand(p *project, args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", p.manifest.Server.Addr, "Connect (HTTP) listen address")
	grpcAddr := fs.String("grpc-addr", p.manifest.Server.GRPCAddr, "gRPC listen address (empty disables gRPC)")
	ttl := fs.Duration("session-ttl", 30*time.Minute, "Drop sessions idle for longer than this")
	fs.Parse(args)

	c := p.openCache()
	if c != nil {
		defer c.Close()
	}

	srv, err := server.New(
		server.WithCache(c),
		server.WithVMOptions(p.vmOptions()...),
		server.WithSessionTTL(*ttl/6, *ttl),
	)
	if err != nil {
		fatal(err)
	}

	errc := make(chan error, 2)
	go func() { errc <- srv.ListenAndServe(*addr) }()

	if *grpcAddr != "" {
		lis, err := net.Listen("tcp", *grpcAddr)
		if err != nil {
			srv.Stop()
			fatal(fmt.Errorf("listening on %s: %w", *grpcAddr, err))
		}
		go func() { errc <- srv.ServeGRPC(lis) }()
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigc:
		log.Infof("received %s, shutting down", sig)
	case err := <-errc:
		if err != nil {
			log.Errorf("server error: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}

// handleLSPCommand runs the language server on stdio.
func handleLSPCommand() {
	if err := server.NewLSP(version).Run(); err != nil {
		fatal(err)
	}
}

// handleRemoteCommand processes `latino remote [-addr host:port] [file.lat]`.
// With a file it evaluates the file in a fresh session; without one it
// starts a REPL against the server.
func handleRemoteCommand(args []string) {
	fs := flag.NewFlagSet("remote", flag.ExitOnError)
	addr := fs.String("addr", "localhost"+manifest.DefaultGRPCAddr, "gRPC address of a latino server")
	timeout := fs.Duration("timeout", 10*time.Second, "Connection timeout")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	r, err := client.Dial(ctx, *addr)
	if err != nil {
		fatal(err)
	}
	defer r.Close()

	if fs.NArg() == 0 {
		printVersion()
		fmt.Printf("Conectado a %s\n", *addr)
		if err := newREPL(&remoteEvaluator{remote: r}, os.Stdin, os.Stdout).run(context.Background()); err != nil {
			fatal(err)
		}
		return
	}

	code := runRemoteFile(context.Background(), r, fs.Arg(0))
	if code != 0 {
		r.Close()
		os.Exit(code)
	}
}

// runRemoteFile evaluates a source file on the server and returns the
// process exit code.
func runRemoteFile(ctx context.Context, r *client.Remote, path string) int {
	if !strings.HasSuffix(path, sourceExt) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", errExtension)
		return 1
	}
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	res, err := r.Evaluate(ctx, string(src))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Print(res.Output)
	if res.Err != "" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", res.Err)
		return 1
	}
	return 0
}
