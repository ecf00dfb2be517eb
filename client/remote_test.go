package client

import (
	"context"
	"net"
	"sort"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/chazu/latino/server"
)

// newTestRemote starts an eval server on an in-memory listener and
// returns a Remote connected to it.
func newTestRemote(t *testing.T) (*Remote, *server.SessionStore) {
	t.Helper()
	sessions := server.NewSessionStore()
	t.Cleanup(sessions.Close)

	gs, err := server.NewGRPCServer(server.NewEvalService(sessions, nil))
	if err != nil {
		t.Fatalf("NewGRPCServer: %v", err)
	}
	lis := bufconn.Listen(1 << 20)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	r, err := Dial(context.Background(), "passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r, sessions
}

func TestMethods(t *testing.T) {
	r, _ := newTestRemote(t)
	got := r.Methods()
	sort.Strings(got)
	want := "CloseSession,Compile,Disassemble,Evaluate"
	if strings.Join(got, ",") != want {
		t.Errorf("Methods() = %v, want %s", got, want)
	}
}

func TestEvaluateSharesSession(t *testing.T) {
	r, _ := newTestRemote(t)
	ctx := context.Background()

	if r.Session() != "" {
		t.Errorf("Session() before first evaluation = %q", r.Session())
	}
	res, err := r.Evaluate(ctx, "contador = 41")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.HasResult {
		t.Error("assignment produced a result")
	}
	first := r.Session()
	if first == "" {
		t.Fatal("no session after first evaluation")
	}

	res, err = r.Evaluate(ctx, "imprimir(contador)")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Err != "" {
		t.Fatalf("remote error: %s", res.Err)
	}
	if res.Output != "41\n" || res.Value != "41" || !res.HasResult {
		t.Errorf("result = %+v", res)
	}
	if r.Session() != first {
		t.Errorf("session changed from %q to %q", first, r.Session())
	}
}

func TestEvaluateErrors(t *testing.T) {
	r, _ := newTestRemote(t)
	ctx := context.Background()

	res, err := r.Evaluate(ctx, "falta()")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !strings.Contains(res.Err, "falta") {
		t.Errorf("Err = %q, want a name error for falta", res.Err)
	}

	_, err = r.Evaluate(ctx, "")
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("empty source error = %v, want invalid argument", err)
	}
}

func TestEvaluateExit(t *testing.T) {
	r, sessions := newTestRemote(t)
	ctx := context.Background()

	res, err := r.Evaluate(ctx, "salir()")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Exited {
		t.Error("Exited = false")
	}
	if r.Session() != "" || sessions.Len() != 0 {
		t.Errorf("session survived salir: %q, %d live", r.Session(), sessions.Len())
	}
}

func TestCompileAndDisassemble(t *testing.T) {
	r, _ := newTestRemote(t)
	ctx := context.Background()

	cr, err := r.Compile(ctx, "imprimir(nadie)")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !cr.Valid || cr.Instructions == 0 || len(cr.Hash) != 64 {
		t.Errorf("CompileResult = %+v", cr)
	}
	if len(cr.Warnings) != 1 || !strings.Contains(cr.Warnings[0], "nadie") {
		t.Errorf("Warnings = %v", cr.Warnings)
	}

	listing, err := r.Disassemble(ctx, "x = 1")
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	if !strings.Contains(listing, "STORE_NAME") {
		t.Errorf("listing = %s", listing)
	}

	if _, err := r.Disassemble(ctx, "x = "); err == nil {
		t.Error("Disassemble of bad source should fail")
	}
}

func TestCloseEndsSession(t *testing.T) {
	r, sessions := newTestRemote(t)
	if _, err := r.Evaluate(context.Background(), "1"); err != nil {
		t.Fatal(err)
	}
	if sessions.Len() != 1 {
		t.Fatalf("live sessions = %d, want 1", sessions.Len())
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sessions.Len() != 0 {
		t.Errorf("live sessions after Close = %d", sessions.Len())
	}
}
