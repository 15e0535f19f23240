package calc

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	ErrInvalidExpression = errors.New("invalid expression")
	ErrDivisionByZero    = errors.New("division by zero")
)

// integer (operator (integer | "(" "-"? integer ")"))*
var grammar = regexp.MustCompile(`^\d+([-+*/](\d+|\(-?\d+\)))*$`)

type Operator string

const (
	Add      Operator = "+"
	Subtract Operator = "-"
	Multiply Operator = "*"
	Divide   Operator = "/"
)

func (o Operator) Valid() bool {
	switch o {
	case Add, Subtract, Multiply, Divide:
		return true
	default:
		return false
	}
}

// highPrecedence reports whether the operator binds tighter than + and -.
func (o Operator) highPrecedence() bool {
	return o == Multiply || o == Divide
}

// Expression is a validated infix expression: len(Operands) == len(Operators)+1.
type Expression struct {
	Raw       string
	Operands  []float64
	Operators []Operator
}

// Normalize drops every whitespace character from the expression.
func Normalize(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}

// Parse validates raw against the grammar and rejects any literal zero divisor.
func Parse(raw string) (*Expression, error) {
	s := Normalize(raw)
	if s == "" || !grammar.MatchString(s) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidExpression, raw)
	}

	expr := &Expression{Raw: s}
	for i := 0; i < len(s); {
		if len(expr.Operands) > len(expr.Operators) {
			op := Operator(s[i : i+1])
			expr.Operators = append(expr.Operators, op)
			i++
			continue
		}

		negative, parenthesised := false, false
		if s[i] == '(' {
			parenthesised = true
			i++
			if s[i] == '-' {
				negative = true
				i++
			}
		}
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		n, err := strconv.ParseInt(s[start:i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: operand %q out of range", ErrInvalidExpression, s[start:i])
		}
		if parenthesised {
			i++ // closing paren
		}
		value := float64(n)
		if negative {
			value = -value
		}

		if len(expr.Operators) > 0 && expr.Operators[len(expr.Operators)-1] == Divide && n == 0 {
			return nil, ErrDivisionByZero
		}
		expr.Operands = append(expr.Operands, value)
	}

	return expr, nil
}

// Apply evaluates a single binary operation.
func Apply(op Operator, left, right float64) (float64, error) {
	switch op {
	case Add:
		return left + right, nil
	case Subtract:
		return left - right, nil
	case Multiply:
		return left * right, nil
	case Divide:
		if right == 0 {
			return 0, ErrDivisionByZero
		}
		return left / right, nil
	default:
		return 0, fmt.Errorf("%w: unknown operator %q", ErrInvalidExpression, op)
	}
}
