package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"prover-api/internal/cache"
	"prover-api/internal/config"
	"prover-api/internal/jobs"
	"prover-api/internal/metrics"
	"prover-api/internal/prover"
	"prover-api/internal/rpc"
	"prover-api/internal/sink"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Verifier checks a freshly computed proof before it is published.
type Verifier interface {
	Verify(ctx context.Context, proof, publicValues []byte) error
}

// Pool drains the job queue and runs each job through the prover under a
// hard timeout. At most `workers` computations hold a permit at any time,
// including computations whose job has already timed out.
type Pool struct {
	queue    *jobs.Queue
	registry *jobs.Registry
	cache    *cache.ProofCache
	prover   prover.Prover
	verifier Verifier
	archive  sink.Sink
	metrics  *metrics.Metrics

	workers int
	timeout time.Duration
	sem     *semaphore.Weighted

	inFlight atomic.Int64
	detached atomic.Int64

	wg  sync.WaitGroup
	log *logrus.Entry
}

// New wires a pool. verifier may be nil when on-chain verification is off.
func New(cfg *config.Config, queue *jobs.Queue, registry *jobs.Registry, pc *cache.ProofCache, p prover.Prover, verifier Verifier, m *metrics.Metrics) *Pool {
	workers := cfg.Queue.Workers
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		queue:    queue,
		registry: registry,
		cache:    pc,
		prover:   p,
		verifier: verifier,
		metrics:  m,
		workers:  workers,
		timeout:  cfg.ProofTimeout(),
		sem:      semaphore.NewWeighted(int64(workers)),
		log:      logrus.WithField("module", "worker"),
	}
}

// SetArchive records every completed proof to s. Archive failures are
// logged and never fail the job. Must be called before Start.
func (p *Pool) SetArchive(s sink.Sink) {
	p.archive = s
}

// Start launches the dispatch loop. It returns immediately; the loop stops
// when ctx is cancelled or the queue is closed and drained.
func (p *Pool) Start(ctx context.Context) {
	p.log.Infof("Starting worker pool | workers=%d timeout=%s queue=%d", p.workers, p.timeout, p.queue.Cap())

	p.wg.Add(1)
	go p.dispatch(ctx)
}

// Wait blocks until the dispatch loop and every supervisor have returned.
// Detached computations are not waited for.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) Workers() int { return p.workers }

// InFlight is the number of computations currently holding a permit.
func (p *Pool) InFlight() int { return int(p.inFlight.Load()) }

// Detached is the number of computations still running after their job
// timed out.
func (p *Pool) Detached() int { return int(p.detached.Load()) }

func (p *Pool) dispatch(ctx context.Context) {
	defer p.wg.Done()

	for {
		msg, ok := p.queue.Receive(ctx)
		if !ok {
			p.log.Info("dispatch loop stopped")
			return
		}

		// Waiting for a permit here keeps later jobs in the queue, so the
		// queue bound still applies while every worker is busy.
		if err := p.sem.Acquire(ctx, 1); err != nil {
			p.fail(msg.JobID, jobs.CodeInternalError, "server shutting down")
			return
		}

		p.wg.Add(1)
		go p.supervise(ctx, msg)
	}
}

type outcome struct {
	result  prover.Result
	elapsed time.Duration
	code    jobs.Code
	err     error
}

func (p *Pool) supervise(ctx context.Context, msg jobs.Message) {
	defer p.wg.Done()

	log := p.log.WithField("job", msg.JobID)
	permitHandedOff := false
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("panic recovered in supervisor: %v", rec)
			if !permitHandedOff {
				p.sem.Release(1)
			}
			p.fail(msg.JobID, jobs.CodeInternalError, fmt.Sprintf("%v", rec))
		}
	}()

	if err := p.registry.Transition(msg.JobID, jobs.Running()); err != nil {
		log.Warnf("cannot start job: %v", err)
		p.sem.Release(1)
		return
	}
	log.Debugf("job running | waited=%s", time.Since(msg.EnqueuedAt))

	var settled atomic.Bool
	done := make(chan outcome, 1)

	p.inFlight.Add(1)
	permitHandedOff = true
	go func() {
		defer p.sem.Release(1)
		defer p.inFlight.Add(-1)

		out := p.compute(ctx, msg)
		if settled.CompareAndSwap(false, true) {
			done <- out
			return
		}

		p.detached.Add(-1)
		p.metrics.DetachedFinished.Inc()
		log.Warnf("discarding result of timed out job | Time: %.2fs err=%v", out.elapsed.Seconds(), out.err)
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		p.finish(log, msg, out)
	case <-timer.C:
		p.abandon(log, msg, &settled, done, jobs.CodeTimeout, "exceeded "+formatTimeout(p.timeout))
	case <-ctx.Done():
		p.abandon(log, msg, &settled, done, jobs.CodeInternalError, "server shutting down")
	}
}

// abandon fails the job while its computation keeps running in the
// background. If the computation settled first, its result wins instead.
func (p *Pool) abandon(log *logrus.Entry, msg jobs.Message, settled *atomic.Bool, done <-chan outcome, code jobs.Code, reason string) {
	p.detached.Add(1)
	if settled.CompareAndSwap(false, true) {
		if code == jobs.CodeTimeout {
			p.metrics.Timeouts.Inc()
		}
		log.Warnf("job abandoned: %s", reason)
		p.fail(msg.JobID, code, reason)
		return
	}
	p.detached.Add(-1)
	p.finish(log, msg, <-done)
}

// compute runs the prover and the optional on-chain check. It never panics.
func (p *Pool) compute(ctx context.Context, msg jobs.Message) (out outcome) {
	start := time.Now()
	defer func() {
		out.elapsed = time.Since(start)
		if rec := recover(); rec != nil {
			out = outcome{
				elapsed: time.Since(start),
				code:    jobs.CodeInternalError,
				err:     fmt.Errorf("prover panicked: %v", rec),
			}
		}
	}()

	res, err := p.prover.Prove(ctx, msg.Request)
	if err != nil {
		return outcome{code: jobs.CodeProofFailed, err: err}
	}

	if p.verifier != nil {
		if err := p.verifier.Verify(ctx, res.Proof, res.PublicValues); err != nil {
			code := jobs.CodeRPCUnavailable
			if errors.Is(err, rpc.ErrVerificationFailed) {
				code = jobs.CodeProofFailed
			}
			return outcome{code: code, err: err}
		}
	}

	return outcome{result: res}
}

func (p *Pool) finish(log *logrus.Entry, msg jobs.Message, out outcome) {
	if out.err != nil {
		log.Errorf("job failed: %v", out.err)
		p.fail(msg.JobID, out.code, out.err.Error())
		return
	}

	proof := hexutil.Encode(out.result.Proof)
	publicValues := hexutil.Encode(out.result.PublicValues)

	p.cache.Put(msg.Fingerprint, proof, publicValues)
	if err := p.registry.Transition(msg.JobID, jobs.Completed(proof, publicValues)); err != nil {
		log.Warnf("cannot complete job: %v", err)
		return
	}

	p.metrics.JobsCompleted.Inc()
	p.metrics.ObserveProof(out.elapsed)
	log.Infof("[OK] proof generated | bytes=%d Time: %.2fs", len(out.result.Proof), out.elapsed.Seconds())

	if p.archive != nil {
		rec := sink.Record{
			JobID:        msg.JobID,
			PublicKey:    msg.Request.PublicKeyHex(),
			Recipient:    msg.Request.Recipient.Hex(),
			Amount:       msg.Request.AmountInt().Dec(),
			Fingerprint:  msg.Fingerprint,
			Proof:        proof,
			PublicValues: publicValues,
			ProvedAt:     time.Now(),
			Duration:     out.elapsed,
		}
		if err := p.archive.Write(rec); err != nil {
			log.Errorf("failed to archive proof: %v", err)
		}
	}
}

func (p *Pool) fail(id string, code jobs.Code, msg string) {
	if err := p.registry.Transition(id, jobs.Failed(code, msg)); err != nil {
		p.log.WithField("job", id).Warnf("cannot fail job: %v", err)
		return
	}
	p.metrics.JobsFailed.WithLabelValues(string(code)).Inc()
}

func formatTimeout(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%d seconds", int64(d/time.Second))
	}
	return d.String()
}
