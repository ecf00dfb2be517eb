package server

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/latino/cache"
	"github.com/chazu/latino/compiler"
	"github.com/chazu/latino/vm"
)

// EvalService implements the eval service. Requests and responses are
// google.protobuf.Struct values:
//
//	Evaluate      {source, session?}  -> {session, result, hasResult, output, error, exited}
//	Compile       {source}            -> {valid, error, warnings, instructions, hash}
//	Disassemble   {source}            -> {disassembly, error}
//	CloseSession  {session}           -> {}
//
// Failures of the program itself (syntax errors, runtime errors) are
// reported in the response's error field. RPC errors are reserved for
// malformed requests and unknown sessions.
type EvalService struct {
	sessions *SessionStore
	cache    *cache.Cache
}

// NewEvalService creates an EvalService. c may be nil, in which case every
// request compiles from scratch.
func NewEvalService(sessions *SessionStore, c *cache.Cache) *EvalService {
	return &EvalService{
		sessions: sessions,
		cache:    c,
	}
}

// Handler returns the Connect handlers for the service and the path prefix
// to mount them under.
func (s *EvalService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(EvaluateProcedure, connect.NewUnaryHandler(EvaluateProcedure, connectUnary(s.Evaluate), opts...))
	mux.Handle(CompileProcedure, connect.NewUnaryHandler(CompileProcedure, connectUnary(s.Compile), opts...))
	mux.Handle(DisassembleProcedure, connect.NewUnaryHandler(DisassembleProcedure, connectUnary(s.Disassemble), opts...))
	mux.Handle(CloseSessionProcedure, connect.NewUnaryHandler(CloseSessionProcedure, connectUnary(s.CloseSession), opts...))
	return "/" + ServiceName + "/", mux
}

type unaryFunc func(context.Context, *structpb.Struct) (*structpb.Struct, error)

func connectUnary(fn unaryFunc) func(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return func(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
		out, err := fn(ctx, req.Msg)
		if err != nil {
			return nil, err
		}
		return connect.NewResponse(out), nil
	}
}

// evalOutcome carries the result of one run off the worker goroutine.
type evalOutcome struct {
	result string
	ok     bool
	output string
	err    error
}

// Evaluate compiles and runs source in a session. Without a session ID a
// new session is created; its ID is returned so later requests can see
// the bindings made by this one.
func (s *EvalService) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	source := stringField(req, "source")
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("source is required"))
	}

	var session *Session
	if id := stringField(req, "session"); id != "" {
		var ok bool
		if session, ok = s.sessions.Get(id); !ok {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
		}
	} else {
		session = s.sessions.Create("")
		log.Debugf("created session %s", session.ID)
	}

	fn, err := s.compile(source)
	if err != nil {
		return newStruct(map[string]any{
			"session":   session.ID,
			"hasResult": false,
			"error":     err.Error(),
		})
	}

	res, err := session.worker.Do(ctx, func(v *vm.VM) any {
		session.out.Reset()
		result, ok, err := v.Run(fn)
		outcome := evalOutcome{ok: ok, output: session.out.String(), err: err}
		if ok {
			outcome.result = vm.Format(result)
		}
		return outcome
	})
	if err != nil {
		return nil, workerError(err)
	}
	outcome := res.(evalOutcome)

	resp := map[string]any{
		"session":   session.ID,
		"hasResult": outcome.ok,
		"output":    outcome.output,
	}
	if outcome.ok {
		resp["result"] = outcome.result
	}
	if outcome.err != nil {
		if errors.Is(outcome.err, vm.ErrExitRequested) {
			s.sessions.Destroy(session.ID)
			resp["exited"] = true
		} else {
			resp["error"] = outcome.err.Error()
		}
	}
	return newStruct(resp)
}

// Compile checks source without running it.
func (s *EvalService) Compile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	source := stringField(req, "source")
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("source is required"))
	}

	fn, err := s.compile(source)
	if err != nil {
		return newStruct(map[string]any{"valid": false, "error": err.Error()})
	}

	var warnings []any
	diags, err := compiler.Check(source)
	if err == nil {
		for _, d := range diags {
			warnings = append(warnings, d.String())
		}
	}
	hash := vm.HashSource([]byte(source))
	return newStruct(map[string]any{
		"valid":        true,
		"warnings":     warnings,
		"instructions": len(fn.Code),
		"hash":         hex.EncodeToString(hash[:]),
	})
}

// Disassemble returns the instruction listing for source.
func (s *EvalService) Disassemble(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	source := stringField(req, "source")
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("source is required"))
	}

	fn, err := s.compile(source)
	if err != nil {
		return newStruct(map[string]any{"error": err.Error()})
	}
	return newStruct(map[string]any{"disassembly": vm.DisassembleFunction(fn)})
}

// CloseSession destroys a session.
func (s *EvalService) CloseSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "session")
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("session is required"))
	}
	if !s.sessions.Destroy(id) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return &structpb.Struct{}, nil
}

func (s *EvalService) compile(source string) (*vm.Function, error) {
	if s.cache != nil {
		return s.cache.Compile([]byte(source))
	}
	return compiler.Analyze(source)
}

// workerError maps a failure to reach a session's worker onto an RPC error.
func workerError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, ErrWorkerStopped):
		return connect.NewError(connect.CodeUnavailable, err)
	}
	log.Errorf("evaluation failed: %v", err)
	return connect.NewError(connect.CodeInternal, err)
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return out, nil
}
