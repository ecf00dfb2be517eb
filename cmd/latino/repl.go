package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chazu/latino/client"
	"github.com/chazu/latino/compiler"
	"github.com/chazu/latino/vm"
)

const (
	prompt     = "latino> "
	contPrompt = "... "
)

// replResult is what one REPL entry produced.
type replResult struct {
	value    string
	hasValue bool
	output   string // printed output not already written to the terminal
	exited   bool
}

// evaluator runs one complete REPL entry.
type evaluator interface {
	evaluate(ctx context.Context, source string) (replResult, error)
}

// localEvaluator runs entries on an in-process interactive VM, which
// writes printed output straight to the terminal.
type localEvaluator struct {
	vm *vm.VM
}

func (l *localEvaluator) evaluate(_ context.Context, source string) (replResult, error) {
	fn, err := compiler.Analyze(source)
	if err != nil {
		return replResult{}, err
	}
	val, ok, err := l.vm.Run(fn)
	if err != nil {
		if errors.Is(err, vm.ErrExitRequested) {
			return replResult{exited: true}, nil
		}
		return replResult{}, err
	}
	res := replResult{hasValue: ok && !vm.IsNull(val)}
	if res.hasValue {
		res.value = vm.Format(val)
	}
	return res, nil
}

func (l *localEvaluator) names() []string { return l.vm.Names() }

func (l *localEvaluator) interned() []string { return vm.InternedNames() }

// inspector is implemented by evaluators whose VM state is visible to the
// REPL.
type inspector interface {
	names() []string
	interned() []string
}

// remoteEvaluator runs entries in a session on an eval server.
type remoteEvaluator struct {
	remote *client.Remote
}

func (r *remoteEvaluator) evaluate(ctx context.Context, source string) (replResult, error) {
	res, err := r.remote.Evaluate(ctx, source)
	if err != nil {
		return replResult{}, err
	}
	out := replResult{
		value:    res.Value,
		hasValue: res.HasResult && res.Value != vm.Null.String(),
		output:   res.Output,
		exited:   res.Exited,
	}
	if res.Err != "" {
		return out, errors.New(res.Err)
	}
	return out, nil
}

// repl is the read-eval-print loop. Input lines accumulate until they parse
// or fail for a reason other than running out of input.
type repl struct {
	eval    evaluator
	in      *bufio.Scanner
	out     io.Writer
	history []string
}

func newREPL(eval evaluator, in io.Reader, out io.Writer) *repl {
	return &repl{
		eval: eval,
		in:   bufio.NewScanner(in),
		out:  out,
	}
}

// run reads entries until end of input or until a program calls salir.
func (r *repl) run(ctx context.Context) error {
	var buf strings.Builder
	for {
		if buf.Len() == 0 {
			fmt.Fprint(r.out, prompt)
		} else {
			fmt.Fprint(r.out, contPrompt)
		}

		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return r.in.Err()
		}
		line := r.in.Text()

		// Handle REPL commands (start with ':')
		if buf.Len() == 0 && strings.HasPrefix(strings.TrimSpace(line), ":") {
			r.command(strings.TrimSpace(line))
			continue
		}

		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(line)
		input := buf.String()
		if strings.TrimSpace(input) == "" {
			buf.Reset()
			continue
		}
		if _, err := compiler.Parse(input); err != nil && compiler.Incomplete(err) {
			continue
		}
		buf.Reset()

		r.history = append(r.history, strings.ReplaceAll(input, "\n", " "))
		if r.evalAndPrint(ctx, input) {
			return nil
		}
	}
}

// evalAndPrint runs one entry and reports whether the program asked to
// exit. The value is echoed unless the entry prints for itself.
func (r *repl) evalAndPrint(ctx context.Context, input string) bool {
	res, err := r.eval.evaluate(ctx, input)
	if res.output != "" {
		fmt.Fprint(r.out, res.output)
	}
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return false
	}
	if res.exited {
		return true
	}
	if res.hasValue && !printsItself(input) {
		fmt.Fprintln(r.out, res.value)
	}
	return false
}

func printsItself(input string) bool {
	return strings.Contains(input, vm.BuiltinPrint) || strings.Contains(input, vm.BuiltinWrite)
}

// command handles REPL meta-commands
func (r *repl) command(cmd string) {
	switch cmd {
	case ":ayuda", ":help":
		fmt.Fprintln(r.out, "Comandos:")
		fmt.Fprintln(r.out, "  :ayuda, :help         Muestra esta ayuda")
		fmt.Fprintln(r.out, "  :historial, :history  Muestra las entradas anteriores")
		fmt.Fprintln(r.out, "  :nombres, :names      Muestra los nombres definidos")
		fmt.Fprintln(r.out, "  :internos, :interned  Muestra la tabla de cadenas internadas")
		fmt.Fprintln(r.out, "  salir()               Termina la sesion")
	case ":historial", ":history":
		for i, entry := range r.history {
			fmt.Fprintf(r.out, "%4d  %s\n", i+1, entry)
		}
	case ":nombres", ":names", ":internos", ":interned":
		in, ok := r.eval.(inspector)
		if !ok {
			fmt.Fprintln(r.out, "No disponible en modo remoto")
			return
		}
		list := in.names()
		if cmd == ":internos" || cmd == ":interned" {
			list = in.interned()
		}
		fmt.Fprintln(r.out, strings.Join(list, " "))
	default:
		fmt.Fprintf(r.out, "Comando desconocido: %s\n", cmd)
	}
}

func runLocalREPL(p *project) error {
	v := vm.New(p.vmOptions(vm.WithInteractive(true), vm.WithOutput(os.Stdout))...)
	return newREPL(&localEvaluator{vm: v}, os.Stdin, os.Stdout).run(context.Background())
}
