package vm

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Compiled-unit images
// ---------------------------------------------------------------------------

// ImageMagic prefixes every encoded image.
var ImageMagic = []byte("LATC")

// ImageVersion is bumped whenever the wire layout changes.
const ImageVersion = 1

// Image is a compiled unit as stored on disk or in the cache.
type Image struct {
	Version    uint8        `cbor:"1,keyasint"`
	SourceHash [32]byte     `cbor:"2,keyasint"`
	Main       wireFunction `cbor:"3,keyasint"`
}

type wireFunction struct {
	Name   string            `cbor:"1,keyasint,omitempty"`
	Params int               `cbor:"2,keyasint,omitempty"`
	Code   []wireInstruction `cbor:"3,keyasint"`
}

// wireInstruction flattens the A slot into one of Int/Str/Bool.
type wireInstruction struct {
	Op   uint8         `cbor:"1,keyasint"`
	Kind uint8         `cbor:"2,keyasint,omitempty"`
	Int  int64         `cbor:"3,keyasint,omitempty"`
	Str  string        `cbor:"4,keyasint,omitempty"`
	B    int           `cbor:"5,keyasint,omitempty"`
	Body *wireFunction `cbor:"6,keyasint,omitempty"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// HashSource returns the content hash images are keyed by.
func HashSource(src []byte) [32]byte {
	return sha256.Sum256(src)
}

// MarshalImage serializes fn, compiled from source with the given hash.
func MarshalImage(fn *Function, sourceHash [32]byte) ([]byte, error) {
	main, err := encodeFunction(fn.Name, fn.Params, fn.Code)
	if err != nil {
		return nil, err
	}
	data, err := cborEncMode.Marshal(&Image{Version: ImageVersion, SourceHash: sourceHash, Main: *main})
	if err != nil {
		return nil, fmt.Errorf("vm: marshal image: %w", err)
	}
	return append(append([]byte{}, ImageMagic...), data...), nil
}

// UnmarshalImage decodes an image produced by MarshalImage.
func UnmarshalImage(data []byte) (*Function, [32]byte, error) {
	var hash [32]byte
	if !IsImage(data) {
		return nil, hash, fmt.Errorf("vm: unmarshal image: missing %q header", ImageMagic)
	}
	var img Image
	if err := cbor.Unmarshal(data[len(ImageMagic):], &img); err != nil {
		return nil, hash, fmt.Errorf("vm: unmarshal image: %w", err)
	}
	if img.Version != ImageVersion {
		return nil, hash, fmt.Errorf("vm: unmarshal image: version %d, want %d", img.Version, ImageVersion)
	}
	code, err := decodeCode(img.Main.Code)
	if err != nil {
		return nil, hash, fmt.Errorf("vm: unmarshal image: %w", err)
	}
	return &Function{Name: img.Main.Name, Params: img.Main.Params, Code: code}, img.SourceHash, nil
}

// IsImage reports whether data starts with the image header.
func IsImage(data []byte) bool {
	return bytes.HasPrefix(data, ImageMagic)
}

func encodeFunction(name string, params int, code []Instruction) (*wireFunction, error) {
	wf := &wireFunction{Name: name, Params: params, Code: make([]wireInstruction, len(code))}
	for i, ins := range code {
		wi := wireInstruction{Op: uint8(ins.Op), B: ins.B}
		if ins.A != nil {
			wi.Kind = uint8(ins.A.Kind())
			switch a := ins.A.(type) {
			case Int:
				wi.Int = int64(a)
			case *Str:
				wi.Str = a.s
			case *Bool:
				if a.v {
					wi.Int = 1
				}
			case *nullValue:
			default:
				return nil, fmt.Errorf("vm: marshal image: %s operand at %d cannot be encoded", ins.A.Kind(), i)
			}
		}
		if ins.Op == OpMakeFunction {
			body, err := encodeFunction("", ins.B, ins.Body)
			if err != nil {
				return nil, err
			}
			wi.Body = body
		}
		wf.Code[i] = wi
	}
	return wf, nil
}

func decodeCode(wire []wireInstruction) ([]Instruction, error) {
	code := make([]Instruction, len(wire))
	for i, wi := range wire {
		op := Opcode(wi.Op)
		if !op.Valid() {
			return nil, fmt.Errorf("unknown opcode 0x%02X at %d", wi.Op, i)
		}
		ins := Instruction{Op: op, B: wi.B}
		switch op {
		case OpStoreName, OpLoadName, OpMakeFunction:
			ins.A = Intern(wi.Str)
		case OpLoadConst:
			ins.A = decodeOperand(Kind(wi.Kind), wi)
		}
		if wi.Body != nil {
			body, err := decodeCode(wi.Body.Code)
			if err != nil {
				return nil, err
			}
			ins.Body = body
		}
		code[i] = ins
	}
	return code, nil
}

func decodeOperand(kind Kind, wi wireInstruction) Value {
	switch kind {
	case KindInt:
		return Int(wi.Int)
	case KindString:
		return NewString(wi.Str)
	case KindBool:
		return BoolValue(wi.Int != 0)
	case KindNull:
		return Null
	}
	return nil
}
