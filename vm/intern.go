package vm

import (
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// String values and the intern table
// ---------------------------------------------------------------------------

// MaxInternLength is the length below which string values are interned.
// Longer strings are always allocated fresh.
const MaxInternLength = 64

// Str is a string value. Two interned Strs with equal content are the same
// pointer, which is what Context lookups compare.
type Str struct {
	s        string
	interned bool
}

func (*Str) Kind() Kind { return KindString }

func (s *Str) String() string { return s.s }

// Interned reports whether s came out of the intern table.
func (s *Str) Interned() bool { return s.interned }

// InternTable deduplicates strings by content.
type InternTable struct {
	mu     sync.RWMutex
	byText map[string]*Str
}

// NewInternTable creates an empty intern table.
func NewInternTable() *InternTable {
	return &InternTable{byText: make(map[string]*Str, 256)}
}

// Intern returns the unique Str for text, creating it on a miss.
func (t *InternTable) Intern(text string) *Str {
	t.mu.RLock()
	if s, ok := t.byText[text]; ok {
		t.mu.RUnlock()
		return s
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check after acquiring write lock
	if s, ok := t.byText[text]; ok {
		return s
	}
	s := &Str{s: text, interned: true}
	t.byText[text] = s
	return s
}

// Lookup returns the interned Str for text without creating one.
func (t *InternTable) Lookup(text string) (*Str, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byText[text]
	return s, ok
}

// Len returns the number of interned strings.
func (t *InternTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byText)
}

// All returns every interned string, sorted.
func (t *InternTable) All() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.byText))
	for text := range t.byText {
		out = append(out, text)
	}
	sort.Strings(out)
	return out
}

// internTable is the process-wide table shared by every VM and compiler.
var internTable = NewInternTable()

// Intern returns the process-wide interned Str for text regardless of its
// length. Names bound in a Context always go through here.
func Intern(text string) *Str {
	return internTable.Intern(text)
}

// NewString materializes a string value: short content is interned,
// content of MaxInternLength bytes or more gets a fresh allocation.
func NewString(text string) *Str {
	if len(text) < MaxInternLength {
		return internTable.Intern(text)
	}
	return &Str{s: text}
}

// InternedNames returns the contents of the process-wide intern table.
func InternedNames() []string {
	return internTable.All()
}
