package projectm

import "math"

// The equation language compiles to small trees of node values evaluated
// post-order against an env. Nodes are pure except assignment, which is only
// expressible at statement level; there are no loops and no recursion in the
// language, so evaluation time is bounded by tree size.
//
// Numeric policy: any operator or function whose result would be non-finite
// (division by zero, log of a non-positive, asin outside [-1,1], overflow)
// yields 0 at the node that produced it. Nothing in the language traps.

type node interface {
	eval(e *env) float64
}

// finite suppresses NaN and ±Inf to the documented sentinel 0.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

type litNode float64

func (n litNode) eval(*env) float64 { return float64(n) }

type varNode int // slot index

func (n varNode) eval(e *env) float64 { return e.slots[n] }

type negNode struct{ arg node }

func (n *negNode) eval(e *env) float64 { return -n.arg.eval(e) }

type notNode struct{ arg node }

func (n *notNode) eval(e *env) float64 {
	if n.arg.eval(e) == 0 {
		return 1
	}
	return 0
}

type binOp uint8

const (
	opAdd binOp = iota
	opSub
	opMul
	opDiv
	opMod
)

type binNode struct {
	op   binOp
	l, r node
}

func (n *binNode) eval(e *env) float64 {
	l := n.l.eval(e)
	r := n.r.eval(e)
	switch n.op {
	case opAdd:
		return finite(l + r)
	case opSub:
		return finite(l - r)
	case opMul:
		return finite(l * r)
	case opDiv:
		if r == 0 {
			return 0
		}
		return finite(l / r)
	default: // opMod
		if r == 0 {
			return 0
		}
		return finite(math.Mod(l, r))
	}
}

// ifNode evaluates the condition and then exactly one branch. Short-circuit
// here is a correctness requirement, not an optimization: the untaken branch
// may contain assignments whose side effects must not occur.
type ifNode struct {
	cond, then, els node
}

func (n *ifNode) eval(e *env) float64 {
	if n.cond.eval(e) != 0 {
		return n.then.eval(e)
	}
	return n.els.eval(e)
}

// assignNode writes the evaluated right-hand side into a slot. Assignment is
// the only side effect in the language and the only way state persists across
// evaluations.
type assignNode struct {
	dst int
	rhs node
}

func (n *assignNode) eval(e *env) float64 {
	v := finite(n.rhs.eval(e))
	e.slots[n.dst] = v
	return v
}

// program is a sequence of statements evaluated in order once per invocation.
type program struct {
	stmts []node
}

// run evaluates every statement. A nil program is a no-op; failed equation
// blocks are represented as nil programs.
func (p *program) run(e *env) {
	if p == nil {
		return
	}
	for _, s := range p.stmts {
		s.eval(e)
	}
}

// --- Function library ---

type fnOp uint8

const (
	fnSin fnOp = iota
	fnCos
	fnTan
	fnAsin
	fnAcos
	fnAtan
	fnSqrt
	fnLog
	fnLog10
	fnExp
	fnAbs
	fnSign
	fnInt
	fnFrac
	fnSigmoid
	fnRand
	fnAtan2
	fnPow
	fnMin
	fnMax
	fnEqual
	fnAbove
	fnBelow
	fnBand
	fnBor
	fnClamp
	fnIf // parsed into ifNode, never reaches callNode
)

type fnDef struct {
	op    fnOp
	arity int
}

var fnTable = map[string]fnDef{
	"sin":     {fnSin, 1},
	"cos":     {fnCos, 1},
	"tan":     {fnTan, 1},
	"asin":    {fnAsin, 1},
	"acos":    {fnAcos, 1},
	"atan":    {fnAtan, 1},
	"sqrt":    {fnSqrt, 1},
	"log":     {fnLog, 1},
	"log10":   {fnLog10, 1},
	"exp":     {fnExp, 1},
	"abs":     {fnAbs, 1},
	"sign":    {fnSign, 1},
	"int":     {fnInt, 1},
	"frac":    {fnFrac, 1},
	"sigmoid": {fnSigmoid, 1},
	"rand":    {fnRand, 1},
	"atan2":   {fnAtan2, 2},
	"pow":     {fnPow, 2},
	"min":     {fnMin, 2},
	"max":     {fnMax, 2},
	"equal":   {fnEqual, 2},
	"above":   {fnAbove, 2},
	"below":   {fnBelow, 2},
	"band":    {fnBand, 2},
	"bor":     {fnBor, 2},
	"clamp":   {fnClamp, 3},
	"if":      {fnIf, 3},
}

type callNode struct {
	op   fnOp
	args []node
}

func (n *callNode) eval(e *env) float64 {
	switch n.op {
	case fnSin:
		return finite(math.Sin(n.args[0].eval(e)))
	case fnCos:
		return finite(math.Cos(n.args[0].eval(e)))
	case fnTan:
		return finite(math.Tan(n.args[0].eval(e)))
	case fnAsin:
		return finite(math.Asin(n.args[0].eval(e)))
	case fnAcos:
		return finite(math.Acos(n.args[0].eval(e)))
	case fnAtan:
		return finite(math.Atan(n.args[0].eval(e)))
	case fnSqrt:
		v := n.args[0].eval(e)
		if v < 0 {
			return 0
		}
		return math.Sqrt(v)
	case fnLog:
		return finite(math.Log(n.args[0].eval(e)))
	case fnLog10:
		return finite(math.Log10(n.args[0].eval(e)))
	case fnExp:
		return finite(math.Exp(n.args[0].eval(e)))
	case fnAbs:
		return math.Abs(n.args[0].eval(e))
	case fnSign:
		v := n.args[0].eval(e)
		switch {
		case v > 0:
			return 1
		case v < 0:
			return -1
		}
		return 0
	case fnInt:
		return math.Trunc(n.args[0].eval(e))
	case fnFrac:
		v := n.args[0].eval(e)
		return v - math.Trunc(v)
	case fnSigmoid:
		return finite(1 / (1 + math.Exp(-n.args[0].eval(e))))
	case fnRand:
		v := n.args[0].eval(e)
		if v <= 0 {
			return 0
		}
		return e.rng.Float64() * v
	case fnAtan2:
		return finite(math.Atan2(n.args[0].eval(e), n.args[1].eval(e)))
	case fnPow:
		return finite(math.Pow(n.args[0].eval(e), n.args[1].eval(e)))
	case fnMin:
		return math.Min(n.args[0].eval(e), n.args[1].eval(e))
	case fnMax:
		return math.Max(n.args[0].eval(e), n.args[1].eval(e))
	case fnEqual:
		if n.args[0].eval(e) == n.args[1].eval(e) {
			return 1
		}
		return 0
	case fnAbove:
		if n.args[0].eval(e) > n.args[1].eval(e) {
			return 1
		}
		return 0
	case fnBelow:
		if n.args[0].eval(e) < n.args[1].eval(e) {
			return 1
		}
		return 0
	case fnBand:
		if n.args[0].eval(e) != 0 && n.args[1].eval(e) != 0 {
			return 1
		}
		return 0
	case fnBor:
		if n.args[0].eval(e) != 0 || n.args[1].eval(e) != 0 {
			return 1
		}
		return 0
	case fnClamp:
		v := n.args[0].eval(e)
		lo := n.args[1].eval(e)
		hi := n.args[2].eval(e)
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}
	return 0
}
