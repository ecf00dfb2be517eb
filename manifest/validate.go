package manifest

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	cueMu      sync.Mutex // guards cueCtx, which is not safe for concurrent use
	cueCtx     *cue.Context
	schema     cue.Value
	schemaErr  error
)

func loadSchema() {
	cueCtx = cuecontext.New()
	schema = cueCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
	schemaErr = schema.Err()
}

// Validate checks m against the manifest schema.
func Validate(m *Manifest) error {
	schemaOnce.Do(loadSchema)
	if schemaErr != nil {
		return fmt.Errorf("manifest schema: %w", schemaErr)
	}
	cueMu.Lock()
	defer cueMu.Unlock()

	val := cueCtx.Encode(m)
	if err := val.Err(); err != nil {
		return fmt.Errorf("invalid %s: %w", FileName, err)
	}
	if err := schema.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid %s: %s", FileName, firstError(err))
	}
	return nil
}

// firstError reduces a CUE error list to its first message.
func firstError(err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	return errs[0].Error()
}
