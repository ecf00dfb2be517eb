// Package client talks to a running latino eval server over gRPC. It learns
// the service's shape through server reflection, so it carries no generated
// code.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"github.com/jhump/protoreflect/grpcreflect"
	"github.com/tliron/commonlog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	rpb "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified name of the eval service.
const ServiceName = "latino.v1.EvalService"

var log = commonlog.GetLogger("latino.client")

// Result is the outcome of one remote evaluation.
type Result struct {
	Value     string // formatted result, when HasResult
	HasResult bool
	Output    string // what the program printed
	Err       string // syntax or runtime error, if any
	Exited    bool   // the program called salir; the session is gone
}

// CompileResult is the outcome of a remote compile check.
type CompileResult struct {
	Valid        bool
	Err          string
	Warnings     []string
	Instructions int
	Hash         string
}

// Remote is a connection to an eval server. Evaluations made through one
// Remote share a server session. A Remote is safe for concurrent use, but
// concurrent evaluations run one at a time on the server.
type Remote struct {
	conn      *grpc.ClientConn
	ownsConn  bool
	refClient *grpcreflect.Client
	service   *desc.ServiceDescriptor

	mu      sync.Mutex
	session string
}

// Dial connects to target without transport security and resolves the
// eval service.
func Dial(ctx context.Context, target string, opts ...grpc.DialOption) (*Remote, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", target, err)
	}
	r, err := NewFromConn(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	r.ownsConn = true
	return r, nil
}

// NewFromConn resolves the eval service on an existing connection. The
// caller keeps ownership of conn.
func NewFromConn(ctx context.Context, conn *grpc.ClientConn) (*Remote, error) {
	refClient := grpcreflect.NewClientV1Alpha(ctx, rpb.NewServerReflectionClient(conn))
	svc, err := refClient.ResolveService(ServiceName)
	if err != nil {
		refClient.Reset()
		return nil, fmt.Errorf("cannot resolve service %s: %w", ServiceName, err)
	}
	return &Remote{
		conn:      conn,
		refClient: refClient,
		service:   svc,
	}, nil
}

// Methods returns the names of the methods the server advertises.
func (r *Remote) Methods() []string {
	methods := r.service.GetMethods()
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = m.GetName()
	}
	return names
}

// Session returns the ID of the server session, or "" before the first
// evaluation.
func (r *Remote) Session() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Evaluate runs source in this Remote's session.
func (r *Remote) Evaluate(ctx context.Context, source string) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fields := map[string]any{"source": source}
	if r.session != "" {
		fields["session"] = r.session
	}
	resp, err := r.invoke(ctx, "Evaluate", fields)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Value:     stringField(resp, "result"),
		HasResult: resp.GetFields()["hasResult"].GetBoolValue(),
		Output:    stringField(resp, "output"),
		Err:       stringField(resp, "error"),
		Exited:    resp.GetFields()["exited"].GetBoolValue(),
	}
	if res.Exited {
		r.session = ""
	} else {
		r.session = stringField(resp, "session")
	}
	return res, nil
}

// Compile checks source on the server without running it.
func (r *Remote) Compile(ctx context.Context, source string) (*CompileResult, error) {
	resp, err := r.invoke(ctx, "Compile", map[string]any{"source": source})
	if err != nil {
		return nil, err
	}
	res := &CompileResult{
		Valid:        resp.GetFields()["valid"].GetBoolValue(),
		Err:          stringField(resp, "error"),
		Instructions: int(resp.GetFields()["instructions"].GetNumberValue()),
		Hash:         stringField(resp, "hash"),
	}
	for _, w := range resp.GetFields()["warnings"].GetListValue().GetValues() {
		res.Warnings = append(res.Warnings, w.GetStringValue())
	}
	return res, nil
}

// Disassemble returns the server's instruction listing for source.
func (r *Remote) Disassemble(ctx context.Context, source string) (string, error) {
	resp, err := r.invoke(ctx, "Disassemble", map[string]any{"source": source})
	if err != nil {
		return "", err
	}
	if msg := stringField(resp, "error"); msg != "" {
		return "", fmt.Errorf("%s", msg)
	}
	return stringField(resp, "disassembly"), nil
}

// Close ends the server session, if any, and releases the connection when
// Dial created it.
func (r *Remote) Close() error {
	r.mu.Lock()
	session := r.session
	r.session = ""
	r.mu.Unlock()

	if session != "" {
		if _, err := r.invoke(context.Background(), "CloseSession", map[string]any{"session": session}); err != nil {
			log.Warningf("closing session %s: %v", session, err)
		}
	}
	r.refClient.Reset()
	if r.ownsConn {
		return r.conn.Close()
	}
	return nil
}

// invoke calls a unary method with a Struct built from fields. The request
// and response travel as dynamic messages built from the reflected
// descriptors.
func (r *Remote) invoke(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	md := r.service.FindMethodByName(method)
	if md == nil {
		return nil, fmt.Errorf("method %s not found in service %s", method, ServiceName)
	}

	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("request conversion: %w", err)
	}
	data, err := proto.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("request conversion: %w", err)
	}
	reqMsg := dynamic.NewMessage(md.GetInputType())
	if err := reqMsg.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("request conversion: %w", err)
	}

	respMsg := dynamic.NewMessage(md.GetOutputType())
	fullMethod := "/" + r.service.GetFullyQualifiedName() + "/" + md.GetName()
	if err := r.conn.Invoke(ctx, fullMethod, reqMsg, respMsg); err != nil {
		return nil, fmt.Errorf("call failed: %w", err)
	}

	data, err = respMsg.Marshal()
	if err != nil {
		return nil, fmt.Errorf("response conversion: %w", err)
	}
	out := &structpb.Struct{}
	if err := proto.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("response conversion: %w", err)
	}
	return out, nil
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}
