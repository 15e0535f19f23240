package calc

import (
	"fmt"
	"time"
)

// Operand is either a literal value or the result of an earlier step.
type Operand struct {
	Value float64 `json:"value"`
	Ref   int     `json:"ref"`
}

const literalRef = -1

func Literal(v float64) Operand {
	return Operand{Value: v, Ref: literalRef}
}

func StepResult(index int) Operand {
	return Operand{Ref: index}
}

func (o Operand) IsLiteral() bool {
	return o.Ref == literalRef
}

// Resolve returns the operand value given the results of the steps run so far.
func (o Operand) Resolve(results []float64) (float64, error) {
	if o.IsLiteral() {
		return o.Value, nil
	}
	if o.Ref < 0 || o.Ref >= len(results) {
		return 0, fmt.Errorf("step %d has no result yet", o.Ref)
	}
	return results[o.Ref], nil
}

func (o Operand) String() string {
	if o.IsLiteral() {
		return fmt.Sprintf("%g", o.Value)
	}
	return fmt.Sprintf("#%d", o.Ref)
}

// Step is one operator sub-task. Steps must run in slice order.
type Step struct {
	Index    int
	Operator Operator
	Left     Operand
	Right    Operand
}

func (s Step) String() string {
	return fmt.Sprintf("%s%s%s", s.Left, s.Operator, s.Right)
}

// Plan decomposes the expression into steps: every * and / left to right,
// then every + and - left to right. A lone literal yields no steps.
func Plan(expr *Expression) []Step {
	steps := make([]Step, 0, len(expr.Operators))
	terms := []Operand{Literal(expr.Operands[0])}
	lowOps := make([]Operator, 0, len(expr.Operators))

	for i, op := range expr.Operators {
		right := Literal(expr.Operands[i+1])
		if !op.highPrecedence() {
			lowOps = append(lowOps, op)
			terms = append(terms, right)
			continue
		}
		last := len(terms) - 1
		steps = append(steps, Step{Index: len(steps), Operator: op, Left: terms[last], Right: right})
		terms[last] = StepResult(len(steps) - 1)
	}

	acc := terms[0]
	for i, op := range lowOps {
		steps = append(steps, Step{Index: len(steps), Operator: op, Left: acc, Right: terms[i+1]})
		acc = StepResult(len(steps) - 1)
	}

	return steps
}

// Result picks the final value of the expression from the step results.
func (e *Expression) Result(results []float64) float64 {
	if len(results) == 0 {
		return e.Operands[0]
	}
	return results[len(results)-1]
}

// Evaluate runs the plan locally, without simulated durations.
func (e *Expression) Evaluate() (float64, error) {
	steps := Plan(e)
	results := make([]float64, 0, len(steps))
	for _, step := range steps {
		left, err := step.Left.Resolve(results)
		if err != nil {
			return 0, err
		}
		right, err := step.Right.Resolve(results)
		if err != nil {
			return 0, err
		}
		v, err := Apply(step.Operator, left, right)
		if err != nil {
			return 0, err
		}
		results = append(results, v)
	}
	return e.Result(results), nil
}

// Durations holds the simulated processing time of each operator.
type Durations map[Operator]time.Duration

func NewDurations(add, subtract, multiply, divide time.Duration) Durations {
	return Durations{
		Add:      add,
		Subtract: subtract,
		Multiply: multiply,
		Divide:   divide,
	}
}

func (d Durations) For(op Operator) time.Duration {
	if d == nil {
		return 0
	}
	return d[op]
}
