package sink

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// RetrySink decorates another Sink adding automatic retries with a constant
// delay, so transient storage failures do not lose archive rows.
//
// If attempts is < 1, it defaults to 1 (no retries).
type RetrySink struct {
	inner    Sink
	attempts int
	delay    time.Duration
}

// NewRetrySink returns nil when inner is nil.
func NewRetrySink(inner Sink, attempts int, delay time.Duration) Sink {
	if inner == nil {
		return nil
	}
	if attempts < 1 {
		attempts = 1
	}
	return &RetrySink{inner: inner, attempts: attempts, delay: delay}
}

// Write forwards the call to the wrapped sink retrying on failure.
func (r *RetrySink) Write(rec Record) error {
	attempt := 0
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(r.delay), uint64(r.attempts-1))
	return backoff.RetryNotify(func() error {
		attempt++
		return r.inner.Write(rec)
	}, policy, func(err error, _ time.Duration) {
		logrus.Warnf("archive write failed (attempt %d/%d): %v", attempt, r.attempts, err)
	})
}
