package interpreter

import (
	"fmt"
	"go/token"
)

func truthy(v interface{}) bool {
	b, ok := v.(bool)
	if !ok {
		panic(fmt.Errorf("expected boolean, got %T", v))
	}
	return b
}

func toInt(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		panic(fmt.Errorf("expected numeric value, got %T", v))
	}
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		panic(fmt.Errorf("expected numeric value, got %T", v))
	}
}

func isFloat(v interface{}) bool {
	_, ok := v.(float64)
	return ok
}

func negate(v interface{}) interface{} {
	if isFloat(v) {
		return -toFloat(v)
	}
	return -toInt(v)
}

func addNumeric(v interface{}, delta int64) interface{} {
	if isFloat(v) {
		return toFloat(v) + float64(delta)
	}
	return toInt(v) + delta
}

// applyBinary evaluates a Go binary operator over two already-
// evaluated dynamic values. Strings only support +, ==, != and the
// ordering operators; numbers support the full arithmetic and
// comparison set, promoting to float64 when either operand is float.
func applyBinary(op token.Token, left, right interface{}) interface{} {
	if ls, ok := left.(string); ok {
		rs, ok := right.(string)
		if !ok {
			panic(fmt.Errorf("mismatched operand types: string and %T", right))
		}
		switch op {
		case token.ADD:
			return ls + rs
		case token.EQL:
			return ls == rs
		case token.NEQ:
			return ls != rs
		case token.LSS:
			return ls < rs
		case token.LEQ:
			return ls <= rs
		case token.GTR:
			return ls > rs
		case token.GEQ:
			return ls >= rs
		default:
			panic(fmt.Errorf("unsupported string operator %s", op))
		}
	}

	if lb, ok := left.(bool); ok {
		rb, ok := right.(bool)
		if !ok {
			panic(fmt.Errorf("mismatched operand types: bool and %T", right))
		}
		switch op {
		case token.EQL:
			return lb == rb
		case token.NEQ:
			return lb != rb
		default:
			panic(fmt.Errorf("unsupported bool operator %s", op))
		}
	}

	useFloat := isFloat(left) || isFloat(right)
	if useFloat {
		lf, rf := toFloat(left), toFloat(right)
		switch op {
		case token.ADD:
			return lf + rf
		case token.SUB:
			return lf - rf
		case token.MUL:
			return lf * rf
		case token.QUO:
			return lf / rf
		case token.EQL:
			return lf == rf
		case token.NEQ:
			return lf != rf
		case token.LSS:
			return lf < rf
		case token.LEQ:
			return lf <= rf
		case token.GTR:
			return lf > rf
		case token.GEQ:
			return lf >= rf
		default:
			panic(fmt.Errorf("unsupported numeric operator %s", op))
		}
	}

	li, ri := toInt(left), toInt(right)
	switch op {
	case token.ADD:
		return li + ri
	case token.SUB:
		return li - ri
	case token.MUL:
		return li * ri
	case token.QUO:
		if ri == 0 {
			panic(fmt.Errorf("integer division by zero"))
		}
		return li / ri
	case token.REM:
		if ri == 0 {
			panic(fmt.Errorf("integer division by zero"))
		}
		return li % ri
	case token.EQL:
		return li == ri
	case token.NEQ:
		return li != ri
	case token.LSS:
		return li < ri
	case token.LEQ:
		return li <= ri
	case token.GTR:
		return li > ri
	case token.GEQ:
		return li >= ri
	default:
		panic(fmt.Errorf("unsupported numeric operator %s", op))
	}
}
