// Package session drives the analysis-session state machine: a pending
// session is polled on a fixed interval until the server reports a terminal
// state, the client-enforced poll ceiling is hit, or the caller cancels.
package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/resumatch/resumatch/internal/api"
	"github.com/resumatch/resumatch/internal/utils"
)

const (
	// DefaultInterval between status polls.
	DefaultInterval = 2 * time.Second
	// DefaultMaxPolls bounds the total polls before the client gives up,
	// independent of the server. 45 polls at 2s is roughly 90 seconds.
	DefaultMaxPolls = 45

	// TimeoutMessage is the user-facing message for the client-enforced
	// ceiling, as distinct from a server-reported analysis failure.
	TimeoutMessage = "The analysis is taking longer than expected. Try again, or upload a different file."

	genericFailureMessage = "The analysis failed. Upload a different file or try again."
)

// Status of an analysis session as seen by the poller.
type Status int

const (
	StatusPending Status = iota
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// StatusFetcher is the one call the poller needs from the API client.
type StatusFetcher interface {
	SessionStatus(ctx context.Context, viewToken string) (*api.SessionStatus, error)
}

// Result is the terminal outcome of a polling run.
type Result struct {
	Status Status
	// ErrorMessage is set when Status is StatusFailed: the server-provided
	// message, a generic fallback, or TimeoutMessage when TimedOut is set.
	ErrorMessage string
	// TimedOut distinguishes the client-enforced ceiling from a
	// server-reported failure.
	TimedOut bool
	// Polls is how many status requests were issued.
	Polls int
}

// Poller runs the polling loop for analysis sessions. Interval and MaxPolls
// may be tuned before the first Run.
type Poller struct {
	fetcher  StatusFetcher
	logger   *zap.Logger
	Interval time.Duration
	MaxPolls int
}

// NewPoller creates a poller with the default interval and ceiling.
func NewPoller(fetcher StatusFetcher, logger *zap.Logger) *Poller {
	return &Poller{
		fetcher:  fetcher,
		logger:   logger,
		Interval: DefaultInterval,
		MaxPolls: DefaultMaxPolls,
	}
}

// Run polls the session until it reaches a terminal state. Polls are strictly
// sequential: a new status request is never issued before the previous
// response is observed. Cancelling ctx stops the loop without a terminal
// state and without further network calls. Calling Run again after a failed
// result is the retry affordance: the cycle count starts from zero and the
// original upload is never resubmitted.
func (p *Poller) Run(ctx context.Context, viewToken string) (*Result, error) {
	for polls := 1; polls <= p.MaxPolls; polls++ {
		if err := utils.WaitFor(ctx, p.Interval); err != nil {
			return nil, err
		}

		status, err := p.fetcher.SessionStatus(ctx, viewToken)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			return nil, fmt.Errorf("polling session status: %w", err)
		}

		p.logger.Debug("poll cycle",
			zap.Int("poll", polls),
			zap.String("status", status.Status),
		)

		switch status.Status {
		case api.SessionProcessing:
			continue
		case api.SessionCompleted:
			return &Result{Status: StatusCompleted, Polls: polls}, nil
		case api.SessionFailed:
			message := status.ErrorMessage
			if message == "" {
				message = genericFailureMessage
			}

			return &Result{Status: StatusFailed, ErrorMessage: message, Polls: polls}, nil
		default:
			return nil, &api.DecodingError{Err: fmt.Errorf("unknown session status %q", status.Status)}
		}
	}

	p.logger.Warn("giving up on session after poll ceiling",
		zap.Int("polls", p.MaxPolls),
	)

	return &Result{
		Status:       StatusFailed,
		ErrorMessage: TimeoutMessage,
		TimedOut:     true,
		Polls:        p.MaxPolls,
	}, nil
}
