package projectm

import "testing"

func TestEnvDeclareAndLookup(t *testing.T) {
	e := newEnv()
	i := e.declare("foo", false)
	j := e.declare("FOO", true) // same name, case-insensitive; readonly ignored on re-declare
	if i != j {
		t.Errorf("declare returned different slots for same name: %d, %d", i, j)
	}
	if e.isReadOnly(i) {
		t.Error("first declaration wins: foo should be writable")
	}
	if _, ok := e.lookup("bar"); ok {
		t.Error("lookup of undeclared name should fail")
	}
}

func TestEnvSaveRestore(t *testing.T) {
	e := newEnv()
	a := e.declare("a", false)
	b := e.declare("b", false)
	e.set(a, 1)
	e.set(b, 2)

	e.save()
	e.set(a, 100)
	e.set(b, 200)
	e.restore()

	if e.get(a) != 1 || e.get(b) != 2 {
		t.Errorf("restore: got (%v, %v), want (1, 2)", e.get(a), e.get(b))
	}
}

func TestEnvSaveRestoreRepeated(t *testing.T) {
	// Per-vertex evaluation saves and restores once per grid point; the
	// snapshot buffer must be reusable.
	e := newEnv()
	a := e.declare("a", false)
	for i := 0; i < 10; i++ {
		e.set(a, float64(i))
		e.save()
		e.set(a, -1)
		e.restore()
		if e.get(a) != float64(i) {
			t.Fatalf("iteration %d: got %v", i, e.get(a))
		}
	}
}

func TestPresetEnvSchema(t *testing.T) {
	e, refs := newPresetEnv()

	// A sampling of read-only built-ins.
	for _, name := range []string{"time", "bass", "treb_att", "x", "rad", "progress", "meshx"} {
		slot, ok := e.lookup(name)
		if !ok {
			t.Errorf("built-in %q not declared", name)
			continue
		}
		if !e.isReadOnly(slot) {
			t.Errorf("built-in %q should be read-only", name)
		}
	}

	// Frame outputs and registers are writable.
	for _, name := range []string{"zoom", "rot", "decay", "wave_r", "q1", "q8"} {
		slot, ok := e.lookup(name)
		if !ok {
			t.Errorf("output %q not declared", name)
			continue
		}
		if e.isReadOnly(slot) {
			t.Errorf("output %q should be writable", name)
		}
	}

	if refs.q[0] == refs.q[7] {
		t.Error("q registers must occupy distinct slots")
	}
}
