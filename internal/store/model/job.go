package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTransition = errors.New("invalid state transition")

type JobState string

// Job states
const (
	JobStatePending    JobState = "pending"
	JobStateInProgress JobState = "in_progress"
	JobStateCompleted  JobState = "completed"
	JobStateError      JobState = "error"
)

var transitions = map[JobState][]JobState{
	JobStatePending:    {JobStateInProgress, JobStateError},
	JobStateInProgress: {JobStateInProgress, JobStateCompleted, JobStateError},
}

func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateError
}

// ValidateTransition returns ErrInvalidTransition unless s may move to next.
// Terminal states accept nothing.
func (s JobState) ValidateTransition(next JobState) error {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
}

type Job struct {
	ID                 uint      `gorm:"primaryKey;autoIncrement"`
	UserID             uint      `gorm:"column:user_id;not null;index"`
	Expression         string    `gorm:"column:expression;not null"`
	AddDuration        int       `gorm:"column:add_duration;not null;default:0"`
	SubtractDuration   int       `gorm:"column:subtract_duration;not null;default:0"`
	MultiplyDuration   int       `gorm:"column:multiply_duration;not null;default:0"`
	DivideDuration     int       `gorm:"column:divide_duration;not null;default:0"`
	InactiveServerTime int       `gorm:"column:inactive_server_time;not null;default:0"`
	State              JobState  `gorm:"column:state;not null;default:pending"`
	Result             *float64  `gorm:"column:result"`
	Error              string    `gorm:"column:error"`
	WorkerURL          string    `gorm:"column:worker_url"`
	TotalSteps         int       `gorm:"column:total_steps;not null;default:0"`
	CompletedSteps     int       `gorm:"column:completed_steps;not null;default:0"`
	CreatedAt          time.Time `gorm:"column:created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
	StartedAt          *time.Time
	FinishedAt         *time.Time
}

type JobList []Job

func (Job) TableName() string {
	return "calculations"
}

func (j Job) String() string {
	v, _ := json.Marshal(j)
	return string(v)
}

// Durations returns the per-operator processing time. Stored values are seconds.
func (j Job) Durations() (add, subtract, multiply, divide time.Duration) {
	return time.Duration(j.AddDuration) * time.Second,
		time.Duration(j.SubtractDuration) * time.Second,
		time.Duration(j.MultiplyDuration) * time.Second,
		time.Duration(j.DivideDuration) * time.Second
}
