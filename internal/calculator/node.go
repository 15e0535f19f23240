package calculator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/distcalc/orchestrator/internal/calc"
	"github.com/distcalc/orchestrator/internal/calculator/client"
	"go.uber.org/zap"
)

var (
	ErrCapacityReached = errors.New("capacity reached")
	ErrShuttingDown    = errors.New("shutting down")
)

// Node executes operator tasks, at most maxGoroutines at a time.
type Node struct {
	slots    chan struct{}
	inflight sync.WaitGroup
	mu       sync.RWMutex
	closing  bool
	log      *zap.SugaredLogger
}

func NewNode(maxGoroutines int) *Node {
	return &Node{
		slots: make(chan struct{}, maxGoroutines),
		log:   zap.S().Named("calculator"),
	}
}

func (n *Node) Capacity() int {
	return cap(n.slots)
}

func (n *Node) Load() int {
	return len(n.slots)
}

func (n *Node) ShuttingDown() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.closing
}

// Calculate waits for the simulated duration of the task and applies the operator.
// A full node refuses the task instead of queueing it.
func (n *Node) Calculate(ctx context.Context, task client.Task) (float64, error) {
	if !task.Operator.Valid() {
		return 0, fmt.Errorf("%w: unknown operator %q", calc.ErrInvalidExpression, task.Operator)
	}
	if task.DurationMs < 0 {
		return 0, fmt.Errorf("%w: negative duration", calc.ErrInvalidExpression)
	}

	if err := n.acquire(); err != nil {
		return 0, err
	}
	defer n.release()

	timer := time.NewTimer(task.Duration())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
	}

	result, err := calc.Apply(task.Operator, task.Left, task.Right)
	if err != nil {
		return 0, err
	}
	n.log.Debugw("task done", "operator", task.Operator, "left", task.Left, "right", task.Right, "result", result)
	return result, nil
}

func (n *Node) acquire() error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closing {
		return ErrShuttingDown
	}
	select {
	case n.slots <- struct{}{}:
		n.inflight.Add(1)
		return nil
	default:
		return ErrCapacityReached
	}
}

func (n *Node) release() {
	<-n.slots
	n.inflight.Done()
}

// Shutdown stops accepting tasks and waits for the running ones, or for ctx.
func (n *Node) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	n.closing = true
	n.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		n.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%d tasks still running: %w", n.Load(), ctx.Err())
	}
}
