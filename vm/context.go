package vm

import "sort"

// ---------------------------------------------------------------------------
// Context: one scope frame
// ---------------------------------------------------------------------------

// Context maps interned names to values. Clone produces a snapshot with
// value semantics; the underlying map is shared until a sharer writes, at
// which point the writer takes a private copy.
type Context struct {
	t *table
}

// table is a binding map and the number of Contexts sharing it.
type table struct {
	vars map[*Str]Value
	refs int
}

// NewContext creates an empty Context.
func NewContext() *Context {
	return &Context{t: &table{vars: make(map[*Str]Value), refs: 1}}
}

func (*Context) Kind() Kind { return KindContext }

func (*Context) String() string { return "Objeto" }

// Clone returns a snapshot of c. Later writes to either Context are not
// visible to the other.
func (c *Context) Clone() *Context {
	c.t.refs++
	return &Context{t: c.t}
}

// release gives up c's share of its table, so a sole remaining sharer
// writes in place again. c must not be used afterwards.
func (c *Context) release() {
	if c.t != nil {
		c.t.refs--
		c.t = nil
	}
}

// Get looks up name by identity.
func (c *Context) Get(name *Str) (Value, bool) {
	v, ok := c.t.vars[name]
	return v, ok
}

// Set binds name to v.
func (c *Context) Set(name *Str, v Value) {
	if c.t.refs > 1 {
		private := make(map[*Str]Value, len(c.t.vars)+1)
		for k, val := range c.t.vars {
			private[k] = val
		}
		c.t.refs--
		c.t = &table{vars: private, refs: 1}
	}
	c.t.vars[name] = v
}

// shared reports whether c's bindings are still shared with another
// Context.
func (c *Context) shared() bool {
	return c.t.refs > 1
}

// Len returns the number of bindings.
func (c *Context) Len() int {
	return len(c.t.vars)
}

// Names returns the bound names, sorted.
func (c *Context) Names() []string {
	names := make([]string, 0, len(c.t.vars))
	for k := range c.t.vars {
		names = append(names, k.s)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// ContextStack: bounded namespace stack
// ---------------------------------------------------------------------------

// DefaultMaxContextDepth bounds the namespace stack.
const DefaultMaxContextDepth = 256

// ContextStack is the VM's ordered stack of scope frames. The bottom frame
// is the global Context and is never popped.
type ContextStack struct {
	frames []*Context
	max    int
}

// NewContextStack creates a stack holding only global.
func NewContextStack(global *Context, max int) *ContextStack {
	if max <= 0 {
		max = DefaultMaxContextDepth
	}
	frames := make([]*Context, 1, 16)
	frames[0] = global
	return &ContextStack{frames: frames, max: max}
}

// Current returns the innermost frame.
func (cs *ContextStack) Current() *Context {
	return cs.frames[len(cs.frames)-1]
}

// Global returns the bottom frame.
func (cs *ContextStack) Global() *Context {
	return cs.frames[0]
}

// Depth returns the number of frames, including the global one.
func (cs *ContextStack) Depth() int {
	return len(cs.frames)
}

// PushClone pushes a snapshot of the current frame.
func (cs *ContextStack) PushClone() error {
	if len(cs.frames) >= cs.max {
		return newRuntimeError(NamespaceOverflow, "", "namespace stack exceeds %d frames", cs.max)
	}
	cs.frames = append(cs.frames, cs.Current().Clone())
	return nil
}

// Pop discards the current frame. The global frame cannot be popped.
func (cs *ContextStack) Pop() error {
	if len(cs.frames) <= 1 {
		return newRuntimeError(NamespaceUnderflow, "", "namespace stack is empty")
	}
	top := len(cs.frames) - 1
	cs.frames[top].release()
	cs.frames[top] = nil
	cs.frames = cs.frames[:top]
	return nil
}

// truncate drops frames above depth; used to recover after an error.
func (cs *ContextStack) truncate(depth int) {
	if depth < 1 {
		depth = 1
	}
	for i := len(cs.frames) - 1; i >= depth; i-- {
		cs.frames[i].release()
		cs.frames[i] = nil
	}
	if depth < len(cs.frames) {
		cs.frames = cs.frames[:depth]
	}
}
