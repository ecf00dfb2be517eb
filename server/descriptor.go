package server

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	_ "google.golang.org/protobuf/types/known/structpb"
)

// The eval service exchanges google.protobuf.Struct messages in both
// directions, so no generated code is needed. Its file descriptor is built
// here and registered globally for server reflection.
const (
	ServiceName = "latino.v1.EvalService"
	protoFile   = "latino/v1/eval.proto"
)

// Method names of the eval service.
const (
	MethodEvaluate     = "Evaluate"
	MethodCompile      = "Compile"
	MethodDisassemble  = "Disassemble"
	MethodCloseSession = "CloseSession"
)

// Connect/gRPC procedure paths.
const (
	EvaluateProcedure     = "/" + ServiceName + "/" + MethodEvaluate
	CompileProcedure      = "/" + ServiceName + "/" + MethodCompile
	DisassembleProcedure  = "/" + ServiceName + "/" + MethodDisassemble
	CloseSessionProcedure = "/" + ServiceName + "/" + MethodCloseSession
)

var methodNames = []string{MethodEvaluate, MethodCompile, MethodDisassemble, MethodCloseSession}

var (
	descriptorOnce sync.Once
	fileDesc       protoreflect.FileDescriptor
	descriptorErr  error
)

// FileDescriptor returns the eval service's file descriptor, registering it
// with protoregistry.GlobalFiles on first use.
func FileDescriptor() (protoreflect.FileDescriptor, error) {
	descriptorOnce.Do(func() {
		fileDesc, descriptorErr = buildFileDescriptor()
	})
	return fileDesc, descriptorErr
}

func buildFileDescriptor() (protoreflect.FileDescriptor, error) {
	if fd, err := protoregistry.GlobalFiles.FindFileByPath(protoFile); err == nil {
		return fd, nil
	}

	methods := make([]*descriptorpb.MethodDescriptorProto, len(methodNames))
	for i, name := range methodNames {
		methods[i] = &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(name),
			InputType:  proto.String(".google.protobuf.Struct"),
			OutputType: proto.String(".google.protobuf.Struct"),
		}
	}

	fdp := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(protoFile),
		Package:    proto.String("latino.v1"),
		Dependency: []string{"google/protobuf/struct.proto"},
		Syntax:     proto.String("proto3"),
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name:   proto.String("EvalService"),
			Method: methods,
		}},
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/chazu/latino/server"),
		},
	}

	fd, err := protodesc.NewFile(fdp, protoregistry.GlobalFiles)
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", protoFile, err)
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		return nil, fmt.Errorf("registering %s: %w", protoFile, err)
	}
	return fd, nil
}
