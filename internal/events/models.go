package events

import (
	"time"
)

const (
	CalculationCompletedKind string = "distcalc.calculation.completed"
	CalculationFailedKind    string = "distcalc.calculation.failed"
)

// CalculationEvent is the payload of calculation lifecycle events.
type CalculationEvent struct {
	ID         uint      `json:"id"`
	UserID     uint      `json:"userId"`
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	Result     *float64  `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	Worker     string    `json:"worker,omitempty"`
	FinishedAt time.Time `json:"finishedAt"`
}
