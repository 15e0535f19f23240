package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/distcalc/orchestrator/internal/calc"
	"github.com/distcalc/orchestrator/pkg/requestid"
	"github.com/pkg/errors"
)

var (
	ErrWorkerUnreachable = errors.New("worker unreachable")
	ErrCapacityReached   = errors.New("worker at capacity")
	ErrShuttingDown      = errors.New("worker shutting down")
	ErrMalformedResponse = errors.New("malformed worker response")
)

// Error codes carried in ErrorReply.Code.
const (
	CodeDivisionByZero = "division_by_zero"
	CodeCapacity       = "capacity_reached"
	CodeShuttingDown   = "shutting_down"
	CodeBadRequest     = "bad_request"
)

// Task is one operator sub-task sent to a worker.
type Task struct {
	Operator   calc.Operator `json:"operator"`
	Left       float64       `json:"left"`
	Right      float64       `json:"right"`
	DurationMs int64         `json:"duration_ms"`
}

func (t Task) Duration() time.Duration {
	return time.Duration(t.DurationMs) * time.Millisecond
}

type ResultReply struct {
	Result float64 `json:"result"`
}

type ErrorReply struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type PingReply struct {
	Status            string `json:"status"`
	MaxGoroutines     int    `json:"maxGoroutines"`
	CurrentGoroutines int    `json:"currentGoroutines"`
}

type RegisterRequest struct {
	URL           string `json:"url"`
	MaxGoroutines int    `json:"maxGoroutines"`
}

// Client talks the fleet protocol: the orchestrator uses it to ping and
// dispatch to workers, workers use it to register with the orchestrator.
// Deadlines come from the caller's context.
type Client struct {
	http *http.Client
}

func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{http: httpClient}
}

func (c *Client) Ping(ctx context.Context, workerURL string) (*PingReply, error) {
	resp, err := c.do(ctx, http.MethodGet, join(workerURL, "/ping"), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: ping returned %d", ErrWorkerUnreachable, resp.StatusCode)
	}

	reply := &PingReply{}
	if err := decode(resp.Body, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// Probe adapts Ping to the registry's probe signature.
func (c *Client) Probe(ctx context.Context, workerURL string) (int, int, error) {
	reply, err := c.Ping(ctx, workerURL)
	if err != nil {
		return 0, 0, err
	}
	return reply.MaxGoroutines, reply.CurrentGoroutines, nil
}

// Calculate runs one task on a worker. Rejections are reported as
// ErrCapacityReached or ErrShuttingDown, arithmetic failures as calc errors.
func (c *Client) Calculate(ctx context.Context, workerURL string, task Task) (float64, error) {
	resp, err := c.do(ctx, http.MethodPost, join(workerURL, "/calculate"), task)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		reply := ResultReply{}
		if err := decode(resp.Body, &reply); err != nil {
			return 0, err
		}
		return reply.Result, nil
	}

	reply := ErrorReply{}
	_ = decode(resp.Body, &reply)

	switch {
	case reply.Code == CodeDivisionByZero:
		return 0, calc.ErrDivisionByZero
	case reply.Code == CodeCapacity || resp.StatusCode == http.StatusTooManyRequests:
		return 0, ErrCapacityReached
	case reply.Code == CodeShuttingDown || resp.StatusCode == http.StatusServiceUnavailable:
		return 0, ErrShuttingDown
	case reply.Code == CodeBadRequest:
		return 0, fmt.Errorf("%w: %s", calc.ErrInvalidExpression, reply.Error)
	case resp.StatusCode >= 500:
		return 0, fmt.Errorf("%w: calculate returned %d", ErrWorkerUnreachable, resp.StatusCode)
	default:
		return 0, fmt.Errorf("%w: unexpected status %d", ErrMalformedResponse, resp.StatusCode)
	}
}

// Register announces a worker to the orchestrator.
func (c *Client) Register(ctx context.Context, orchestratorURL string, req RegisterRequest) error {
	resp, err := c.do(ctx, http.MethodPost, join(orchestratorURL, "/api/v1/workers"), req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Errorf("registration rejected with %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encoding request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, errors.Wrapf(err, "building request to %s", url)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestid.Propagate(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		// keep deadline errors visible to callers that tell timeouts apart
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrWorkerUnreachable, ctxErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrWorkerUnreachable, errors.Wrapf(err, "%s %s", method, url))
	}
	return resp, nil
}

func decode(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, errors.WithStack(err))
	}
	return nil
}

func join(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
