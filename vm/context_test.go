package vm

import (
	"errors"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Context tests
// ---------------------------------------------------------------------------

func TestContextGetSet(t *testing.T) {
	ctx := NewContext()
	x := Intern("x")
	if _, ok := ctx.Get(x); ok {
		t.Error("empty context should not bind x")
	}
	ctx.Set(x, Int(1))
	if v, ok := ctx.Get(x); !ok || v != Int(1) {
		t.Errorf("Get(x) = %v, %v; want 1", v, ok)
	}
	if ctx.Len() != 1 {
		t.Errorf("Len() = %d, want 1", ctx.Len())
	}
}

func TestContextLookupIsByIdentity(t *testing.T) {
	ctx := NewContext()
	long := strings.Repeat("n", MaxInternLength)
	ctx.Set(Intern(long), Int(1))
	if _, ok := ctx.Get(NewString(long)); ok {
		t.Error("a non-interned Str should not find an interned binding")
	}
	if _, ok := ctx.Get(Intern(long)); !ok {
		t.Error("the interned Str should find the binding")
	}
}

func TestContextCloneIsSnapshot(t *testing.T) {
	x, y := Intern("x"), Intern("y")
	parent := NewContext()
	parent.Set(x, Int(1))

	child := parent.Clone()
	if v, _ := child.Get(x); v != Int(1) {
		t.Errorf("clone should see x = 1, got %v", v)
	}

	child.Set(x, Int(2))
	if v, _ := parent.Get(x); v != Int(1) {
		t.Errorf("write in the clone leaked to the parent: x = %v", v)
	}

	parent.Set(y, Int(3))
	if _, ok := child.Get(y); ok {
		t.Error("write in the parent after cloning is visible in the clone")
	}

	sibling := parent.Clone()
	if v, _ := sibling.Get(x); v != Int(1) {
		t.Errorf("second clone x = %v, want 1", v)
	}
	if strings.Join(sibling.Names(), ",") != "x,y" {
		t.Errorf("Names() = %v", sibling.Names())
	}
}

func TestContextCloneOfClone(t *testing.T) {
	x := Intern("x")
	a := NewContext()
	a.Set(x, Int(1))
	b := a.Clone()
	c := b.Clone()
	c.Set(x, Int(3))
	b.Set(x, Int(2))
	for _, tc := range []struct {
		ctx  *Context
		want Int
	}{{a, 1}, {b, 2}, {c, 3}} {
		if v, _ := tc.ctx.Get(x); v != tc.want {
			t.Errorf("x = %v, want %v", v, tc.want)
		}
	}
}

func TestContextStackPopReturnsOwnership(t *testing.T) {
	x := Intern("x")
	global := NewContext()
	global.Set(x, Int(1))
	cs := NewContextStack(global, 0)

	for i := 0; i < 3; i++ {
		if err := cs.PushClone(); err != nil {
			t.Fatal(err)
		}
		if !global.shared() {
			t.Fatal("global should share its bindings with the pushed frame")
		}
		if err := cs.Pop(); err != nil {
			t.Fatal(err)
		}
		if global.shared() {
			t.Fatalf("call %d: global still shared after the frame was popped", i)
		}
		before := global.t
		global.Set(x, Int(i))
		if global.t != before {
			t.Errorf("call %d: write after pop copied the bindings", i)
		}
	}

	// A frame that wrote has its own table; popping it leaves global alone.
	cs.PushClone()
	cs.Current().Set(x, Int(99))
	cs.PushClone()
	cs.truncate(1)
	if global.shared() {
		t.Error("global shared after truncate")
	}
	if v, _ := global.Get(x); v != Int(2) {
		t.Errorf("global x = %v, want 2", v)
	}
}

// ---------------------------------------------------------------------------
// Context stack tests
// ---------------------------------------------------------------------------

func TestContextStackBounds(t *testing.T) {
	cs := NewContextStack(NewContext(), 3)
	if cs.Depth() != 1 {
		t.Fatalf("Depth() = %d, want 1", cs.Depth())
	}
	for i := 0; i < 2; i++ {
		if err := cs.PushClone(); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if err := cs.PushClone(); !errors.Is(err, ErrNamespaceOverflow) {
		t.Errorf("push past the bound: %v, want NamespaceOverflow", err)
	}
	for i := 0; i < 2; i++ {
		if err := cs.Pop(); err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
	}
	if err := cs.Pop(); !errors.Is(err, ErrNamespaceUnderflow) {
		t.Errorf("popping the global frame: %v, want NamespaceUnderflow", err)
	}
	if cs.Current() != cs.Global() {
		t.Error("only the global frame should remain")
	}
}

func TestContextStackPushSnapshotsCurrent(t *testing.T) {
	x := Intern("x")
	cs := NewContextStack(NewContext(), DefaultMaxContextDepth)
	cs.Global().Set(x, Int(1))
	if err := cs.PushClone(); err != nil {
		t.Fatal(err)
	}
	cs.Current().Set(x, Int(2))
	if err := cs.Pop(); err != nil {
		t.Fatal(err)
	}
	if v, _ := cs.Current().Get(x); v != Int(1) {
		t.Errorf("x after pop = %v, want 1", v)
	}
}

func TestContextStackTruncate(t *testing.T) {
	cs := NewContextStack(NewContext(), 0)
	for i := 0; i < 5; i++ {
		if err := cs.PushClone(); err != nil {
			t.Fatal(err)
		}
	}
	cs.truncate(2)
	if cs.Depth() != 2 {
		t.Errorf("Depth() = %d, want 2", cs.Depth())
	}
	cs.truncate(0)
	if cs.Depth() != 1 {
		t.Errorf("truncate(0) should keep the global frame, depth = %d", cs.Depth())
	}
}
