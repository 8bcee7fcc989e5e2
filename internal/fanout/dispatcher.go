// Package fanout sends one notification to every device token of a user and
// classifies each per-token result.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-reminder-service/pkg/dispatch"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers       = 8
	DefaultSendTimeout   = 10 * time.Second
	DefaultDeleteTimeout = 5 * time.Second
)

// Config bounds the fan-out.
type Config struct {
	// Workers is the maximum number of concurrent provider calls.
	Workers int
	// SendTimeout bounds each provider call.
	SendTimeout time.Duration
	// DeleteTimeout bounds each token deletion.
	DeleteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.DeleteTimeout <= 0 {
		c.DeleteTimeout = DefaultDeleteTimeout
	}
	return c
}

// Recorder receives one call per send outcome. It must be safe for concurrent use.
type Recorder interface {
	RecordSend(outcome dispatch.DispatchOutcome, elapsed time.Duration)
	RecordPrune()
}

// Dispatcher fans a message out to device tokens through a dispatch.Sender.
type Dispatcher struct {
	sender   dispatch.Sender
	tokens   dispatch.TokenStore
	cfg      Config
	recorder Recorder
	logger   *slog.Logger
}

// New creates a Dispatcher. recorder may be nil.
func New(sender dispatch.Sender, tokens dispatch.TokenStore, cfg Config, recorder Recorder, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:   sender,
		tokens:   tokens,
		cfg:      cfg.withDefaults(),
		recorder: recorder,
		logger:   logger.With("component", "Dispatcher"),
	}
}

// DispatchAll sends msg to every token, presenting bearer on each call.
//
// One failing token never affects the others. Tokens the provider reports as
// permanently invalid are deleted from the store before DispatchAll returns.
// Sends already in flight when ctx is cancelled run to completion; tokens not
// yet started are reported as skipped failures. The returned error is
// dispatch.ErrProviderUnreachable when no send reached the provider at all,
// or dispatch.ErrCredentialUnavailable when that was down to credentials.
func (d *Dispatcher) DispatchAll(ctx context.Context, bearer string, msg dispatch.Message, tokens []dispatch.DeviceToken) (dispatch.DispatchSummary, error) {
	var summary dispatch.DispatchSummary
	if len(tokens) == 0 {
		return summary, nil
	}

	outcomes := make([]dispatch.DispatchOutcome, len(tokens))
	pruned := make([]bool, len(tokens))
	detached := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(d.cfg.Workers)
	for i, tok := range tokens {
		if err := ctx.Err(); err != nil {
			outcomes[i] = d.skip(tok, err)
			continue
		}
		g.Go(func() error {
			outcomes[i], pruned[i] = d.sendOne(ctx, detached, bearer, msg, tok)
			return nil
		})
	}
	_ = g.Wait()

	unreachable, uncredentialed := 0, 0
	for i, o := range outcomes {
		if o.Status == dispatch.StatusSent {
			summary.SentCount++
			continue
		}
		summary.FailedCount++
		summary.Failures = append(summary.Failures, o)
		switch o.Kind {
		case dispatch.FailureUnreachable:
			unreachable++
		case dispatch.FailureCredential:
			uncredentialed++
		}
		if pruned[i] {
			summary.PrunedCount++
		}
	}

	d.logger.Info("Dispatch complete",
		"type", msg.Type, "tokens", len(tokens), "sent", summary.SentCount,
		"failed", summary.FailedCount, "pruned", summary.PrunedCount)

	if uncredentialed > 0 && uncredentialed+unreachable == len(tokens) {
		return summary, fmt.Errorf("%w: %d of %d sends had no credential", dispatch.ErrCredentialUnavailable, uncredentialed, len(tokens))
	}
	if unreachable == len(tokens) {
		return summary, fmt.Errorf("%w: all %d sends failed", dispatch.ErrProviderUnreachable, unreachable)
	}
	return summary, nil
}

// sendOne checks ctx before starting but runs the call itself on detached,
// so cancellation never interrupts a send that has begun.
func (d *Dispatcher) sendOne(ctx, detached context.Context, bearer string, msg dispatch.Message, tok dispatch.DeviceToken) (dispatch.DispatchOutcome, bool) {
	if err := ctx.Err(); err != nil {
		return d.skip(tok, err), false
	}

	sendCtx, cancel := context.WithTimeout(detached, d.cfg.SendTimeout)
	defer cancel()

	start := time.Now()
	err := d.sender.Send(sendCtx, bearer, tok.PushToken, msg)
	outcome := classify(tok, err)
	d.record(outcome, time.Since(start))

	if outcome.Status == dispatch.StatusSent {
		return outcome, false
	}

	d.logger.Warn("Send failed", "user", tok.UserID, "token", redact(tok.PushToken), "kind", outcome.Kind, "err", err)
	if outcome.Kind != dispatch.FailurePermanentToken {
		return outcome, false
	}
	return outcome, d.prune(detached, tok)
}

func (d *Dispatcher) prune(ctx context.Context, tok dispatch.DeviceToken) bool {
	delCtx, cancel := context.WithTimeout(ctx, d.cfg.DeleteTimeout)
	defer cancel()

	if err := d.tokens.DeleteToken(delCtx, tok); err != nil {
		d.logger.Warn("Failed to delete invalid token", "user", tok.UserID, "token", redact(tok.PushToken), "err", err)
		return false
	}
	if d.recorder != nil {
		d.recorder.RecordPrune()
	}
	d.logger.Info("Deleted invalid token", "user", tok.UserID, "token", redact(tok.PushToken))
	return true
}

func (d *Dispatcher) skip(tok dispatch.DeviceToken, cause error) dispatch.DispatchOutcome {
	o := dispatch.DispatchOutcome{
		Token:         tok.PushToken,
		Status:        dispatch.StatusFailed,
		Kind:          dispatch.FailureSkipped,
		FailureReason: fmt.Sprintf("not attempted: %v", cause),
	}
	d.record(o, 0)
	return o
}

func (d *Dispatcher) record(o dispatch.DispatchOutcome, elapsed time.Duration) {
	if d.recorder != nil {
		d.recorder.RecordSend(o, elapsed)
	}
}

func classify(tok dispatch.DeviceToken, err error) dispatch.DispatchOutcome {
	o := dispatch.DispatchOutcome{Token: tok.PushToken, Status: dispatch.StatusSent}
	if err == nil {
		return o
	}

	o.Status = dispatch.StatusFailed
	o.FailureReason = err.Error()

	var perr *dispatch.ProviderError
	switch {
	case errors.Is(err, dispatch.ErrCredentialUnavailable):
		o.Kind = dispatch.FailureCredential
	case errors.As(err, &perr) && perr.PermanentToken():
		o.Kind = dispatch.FailurePermanentToken
	case errors.As(err, &perr):
		o.Kind = dispatch.FailureTransient
	default:
		o.Kind = dispatch.FailureUnreachable
	}
	return o
}

// redact keeps the tail of a push token for log correlation.
func redact(token string) string {
	if len(token) <= 8 {
		return "..."
	}
	return "..." + token[len(token)-8:]
}
