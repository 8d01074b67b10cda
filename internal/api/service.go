package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prover-api/internal/cache"
	"prover-api/internal/claim"
	"prover-api/internal/config"
	"prover-api/internal/jobs"
	"prover-api/internal/metrics"
	"prover-api/internal/ratelimit"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

// ClaimChecker reports whether a public key has already claimed on chain.
type ClaimChecker interface {
	HasClaimed(ctx context.Context, pubkey [32]byte) (bool, error)
}

// Eligibility resolves the balance a public key may claim.
type Eligibility interface {
	Lookup(pubkey [32]byte) (*uint256.Int, bool)
	Len() int
}

// Rejection is a synchronous admission failure.
type Rejection struct {
	Code       jobs.Code
	Message    string
	RetryAfter time.Duration
}

func (r *Rejection) Error() string {
	return string(r.Code) + ": " + r.Message
}

func reject(code jobs.Code, format string, args ...interface{}) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Submission is an admitted request. Status is pending, or completed when
// the proof was served from the cache.
type Submission struct {
	JobID  string
	Status jobs.Status
}

// Components are the collaborators a Service orchestrates. Claims and
// Eligibility are optional.
type Components struct {
	Registry      *jobs.Registry
	Queue         *jobs.Queue
	Cache         *cache.ProofCache
	PubkeyLimiter *ratelimit.Limiter
	IPLimiter     *ratelimit.Limiter
	Claims        ClaimChecker
	Eligibility   Eligibility
	Metrics       *metrics.Metrics
}

// Service admits proof requests into the job queue.
type Service struct {
	cfg *config.Config
	Components

	log *logrus.Entry
}

func NewService(cfg *config.Config, c Components) *Service {
	return &Service{
		cfg:        cfg,
		Components: c,
		log:        logrus.WithField("module", "api"),
	}
}

// Submit runs the admission pipeline: validation, per-key rate limit, cache
// lookup, eligibility, on-chain claim status and finally the queue.
func (s *Service) Submit(ctx context.Context, req claim.ProveRequest) (Submission, *Rejection) {
	sub, rej := s.submit(ctx, req)
	if rej != nil {
		s.Metrics.Submissions.WithLabelValues(string(rej.Code)).Inc()
		s.log.Infof("request rejected: %v", rej)
	}
	return sub, rej
}

func (s *Service) submit(ctx context.Context, req claim.ProveRequest) (Submission, *Rejection) {
	validated, err := claim.Validate(req)
	if err != nil {
		return Submission{}, reject(jobs.CodeInvalidInput, "%v", err)
	}

	if d := s.PubkeyLimiter.CheckAndUpdate(ratelimit.PubkeyKey(validated.PublicKey)); !d.Allowed {
		rej := reject(jobs.CodeRateLimited, "too many requests for this public key")
		rej.RetryAfter = d.RetryAfter
		return Submission{}, rej
	}

	fingerprint := claim.Fingerprint(validated)
	if cached, ok := s.Cache.Get(fingerprint); ok {
		s.Metrics.CacheHits.Inc()
		s.Metrics.Submissions.WithLabelValues("cached").Inc()

		id := jobs.NewID()
		st := jobs.Completed(cached.Proof, cached.PublicValues)
		s.Registry.Create(id, st)
		s.log.WithField("job", id).Infof("served from cache | pubkey=%s", validated.PublicKeyHex())
		return Submission{JobID: id, Status: st}, nil
	}
	s.Metrics.CacheMisses.Inc()

	if s.Eligibility != nil {
		balance, ok := s.Eligibility.Lookup(validated.PublicKey)
		if !ok {
			return Submission{}, reject(jobs.CodeNotEligible, "public key is not eligible")
		}
		if validated.AmountInt().Gt(balance) {
			return Submission{}, reject(jobs.CodeNotEligible, "amount exceeds eligible balance of %s", balance.Dec())
		}
	}

	if s.Claims != nil {
		claimed, err := s.Claims.HasClaimed(ctx, validated.PublicKey)
		if err != nil {
			return Submission{}, reject(jobs.CodeRPCUnavailable, "failed to check claim status: %v", err)
		}
		if claimed {
			return Submission{}, reject(jobs.CodeAlreadyClaimed, "public key has already claimed")
		}
	}

	// The job must exist before a worker can pick it up.
	id := jobs.NewID()
	s.Registry.Create(id, jobs.Pending())

	err = s.Queue.TryEnqueue(jobs.Message{
		JobID:       id,
		Request:     validated,
		Fingerprint: fingerprint,
	})
	if err != nil {
		s.Registry.Delete(id)
		if errors.Is(err, jobs.ErrQueueFull) {
			return Submission{}, reject(jobs.CodeQueueFull, "proof queue is full, try again later")
		}
		return Submission{}, reject(jobs.CodeInternalError, "%v", err)
	}

	s.Metrics.Submissions.WithLabelValues("accepted").Inc()
	s.log.WithField("job", id).Infof("job queued | pubkey=%s depth=%d", validated.PublicKeyHex(), s.Queue.Len())
	return Submission{JobID: id, Status: jobs.Pending()}, nil
}

// CheckIP applies the per-IP limiter.
func (s *Service) CheckIP(ip string) ratelimit.Decision {
	return s.IPLimiter.CheckAndUpdate(ratelimit.IPKey(ip))
}

func (s *Service) Job(id string) (jobs.Job, bool) {
	return s.Registry.Get(id)
}

// Sweep evicts expired jobs, cache entries and idle limiter entries once.
func (s *Service) Sweep() {
	removedJobs := s.Registry.Cleanup(s.cfg.JobsTTL())
	removedProofs := s.Cache.Cleanup()
	removedKeys := s.PubkeyLimiter.Cleanup() + s.IPLimiter.Cleanup()

	if removedJobs+removedProofs+removedKeys > 0 {
		s.log.Debugf("cleanup | jobs=%d proofs=%d limiter_keys=%d", removedJobs, removedProofs, removedKeys)
	}
}

// StartCleanup sweeps on every jobs.cleanup_interval_secs tick until ctx is
// cancelled.
func (s *Service) StartCleanup(ctx context.Context) {
	interval := s.cfg.CleanupInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}
