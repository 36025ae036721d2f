package projectm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"unknown function", "q1 = froboz(1);", "unknown function"},
		{"wrong arity", "q1 = sin(1, 2);", "expects 1 argument"},
		{"wrong arity if", "q1 = if(1, 2);", "expects 3 argument"},
		{"unbalanced paren", "q1 = (1 + 2;", "expected ')'"},
		{"unexpected char", "q1 = 1 @ 2;", "unexpected character"},
		{"missing operand", "q1 = 1 + ;", "expected expression"},
		{"missing separator", "q1 = 1 q2 = 2", "expected ';'"},
		{"assign to builtin", "time = 3;", "read-only built-in"},
		{"assign to function", "sin = 3;", "cannot assign to function"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newPresetEnv()
			_, err := parseProgram(tt.src, e)
			require.Error(t, err)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Contains(t, pe.Error(), tt.msg)
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	e, _ := newPresetEnv()
	_, err := parseProgram("q1 = bogusfn(3);", e)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 5, pe.Pos, "position should point at the offending token")
}

func TestAssignToVertexBuiltinRejected(t *testing.T) {
	// x, y, rad, ang are engine-written vertex built-ins.
	for _, src := range []string{"x = 1;", "rad = 0;", "ang = 0;"} {
		e, _ := newPresetEnv()
		_, err := parseProgram(src, e)
		assert.Error(t, err, src)
	}
}

func TestUnknownVariablesAutoBind(t *testing.T) {
	e, _ := newPresetEnv()
	prog, err := parseProgram("my_thing = 3; q1 = my_thing * 2;", e)
	require.NoError(t, err)
	prog.run(e)
	slot, ok := e.lookup("my_thing")
	require.True(t, ok)
	assert.Equal(t, 3.0, e.get(slot))
}

func TestEmptyStatementsTolerated(t *testing.T) {
	e, refs := newPresetEnv()
	prog, err := parseProgram(";;q1 = 1;;;q2 = 2;;", e)
	require.NoError(t, err)
	prog.run(e)
	assert.Equal(t, 1.0, e.get(refs.q[0]))
	assert.Equal(t, 2.0, e.get(refs.q[1]))
}

func TestNumberLexing(t *testing.T) {
	tests := []struct {
		src  string
		want float64
	}{
		{"42", 42},
		{"3.25", 3.25},
		{"0.5", 0.5},
		{"1e3", 1000},
		{"1.5e-2", 0.015},
		{"2E2", 200},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, evalExpr(t, tt.src))
		})
	}
}

func TestBareExpressionStatement(t *testing.T) {
	// An expression without assignment is valid and side-effect free.
	e, _ := newPresetEnv()
	prog, err := parseProgram("1 + 2 * 3;", e)
	require.NoError(t, err)
	assert.Equal(t, 7.0, prog.stmts[0].eval(e))
}
