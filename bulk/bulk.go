// Package bulk runs independent operations best effort and reports each one's outcome.
package bulk

import (
	"context"
	"fmt"
	"io"
	"log"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

// Outcome is what a successful operation produced.
type Outcome struct {
	Count    int    `json:"exported"`
	Location string `json:"file,omitempty"`
	Payload  any    `json:"-"`
}

type Failure struct {
	Operation string `json:"operation"`
	Error     string `json:"error"`
}

type Operation struct {
	Name string
	Run  func(ctx context.Context) (Outcome, error)
}

/*
Result of one aggregated run.

Outcomes holds an entry for every attempted operation; failed ones carry the zero Outcome.
Failures follow operation order, not completion order. Success == (len(Failures) == 0).
*/
type Result struct {
	Outcomes map[string]Outcome `json:"outcomes"`
	Order    []string           `json:"-"`
	Failures []Failure          `json:"failures,omitempty"`
	Success  bool               `json:"success"`
	Started  time.Time          `json:"timestamp"`
}

// Count returns the outcome count of an operation, 0 when it failed or was not run.
func (r *Result) Count(name string) int {
	return r.Outcomes[name].Count
}

// Failed reports whether the named operation failed.
func (r *Result) Failed(name string) bool {
	for _, f := range r.Failures {
		if f.Operation == name {
			return true
		}
	}
	return false
}

type Aggregator struct {
	// Concurrent runs the operations in parallel instead of one after the other.
	Concurrent bool

	Logger *log.Logger
	Now    func() time.Time
}

/*
Run executes every operation and never stops early: a failing or panicking operation is
recorded and the next one still runs.
*/
func (a *Aggregator) Run(ctx context.Context, ops []Operation) *Result {
	logger := a.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	now := a.Now
	if now == nil {
		now = time.Now
	}

	started := now()
	outcomes := make([]Outcome, len(ops))
	errs := make([]error, len(ops))

	if a.Concurrent {
		var g errgroup.Group
		for i, op := range ops {
			i, op := i, op
			g.Go(func() error {
				outcomes[i], errs[i] = runOne(ctx, op, logger)
				// errors are recorded per operation
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, op := range ops {
			outcomes[i], errs[i] = runOne(ctx, op, logger)
		}
	}

	res := &Result{
		Outcomes: make(map[string]Outcome, len(ops)),
		Order:    make([]string, 0, len(ops)),
		Started:  started,
	}
	for i, op := range ops {
		res.Order = append(res.Order, op.Name)
		if errs[i] != nil {
			logger.Printf("bulk operation %s failed: %v", op.Name, errs[i])
			res.Outcomes[op.Name] = Outcome{}
			res.Failures = append(res.Failures, Failure{Operation: op.Name, Error: errs[i].Error()})
			continue
		}
		res.Outcomes[op.Name] = outcomes[i]
	}
	res.Success = len(res.Failures) == 0
	return res
}

func runOne(ctx context.Context, op Operation, logger *log.Logger) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Printf("bulk operation %s panicked: %v\n%s", op.Name, r, debug.Stack())
			out = Outcome{}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return op.Run(ctx)
}
