package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"prover-api/internal/claim"
	"prover-api/internal/jobs"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// handleProve handles POST /prove
func (s *Server) handleProve(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.BodyLimitBytes)
	defer r.Body.Close()

	var req claim.ProveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.metrics.Submissions.WithLabelValues(string(jobs.CodePayloadTooLarge)).Inc()
			writeError(w, http.StatusRequestEntityTooLarge, jobs.CodePayloadTooLarge,
				"request body exceeds "+strconv.FormatInt(maxErr.Limit, 10)+" bytes", 0)
			return
		}
		s.metrics.Submissions.WithLabelValues(string(jobs.CodeInvalidInput)).Inc()
		writeError(w, http.StatusBadRequest, jobs.CodeInvalidInput, "invalid JSON body: "+err.Error(), 0)
		return
	}

	sub, rej := s.service.Submit(r.Context(), req)
	if rej != nil {
		writeRejection(w, rej)
		return
	}

	if sub.Status.State == jobs.StateCompleted {
		writeJSON(w, http.StatusOK, ProveResponse{
			JobID:        sub.JobID,
			Status:       string(jobs.StateCompleted),
			ZKProof:      sub.Status.Proof,
			PublicValues: sub.Status.PublicValues,
		})
		return
	}
	writeJSON(w, http.StatusAccepted, ProveResponse{JobID: sub.JobID, Status: string(jobs.StatePending)})
}

// handleStatus handles GET /status/{jobId}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["jobId"]

	job, ok := s.service.Job(id)
	if !ok {
		writeError(w, http.StatusNotFound, jobs.CodeNotFound, "job not found", 0)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Status:       string(job.Status.State),
		ZKProof:      job.Status.Proof,
		PublicValues: job.Status.PublicValues,
		Code:         string(job.Status.Code),
		Error:        job.Status.Error,
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	svc := s.service

	counts := svc.Registry.Counts()
	jobCounts := make(map[string]int, len(counts))
	for st, n := range counts {
		jobCounts[string(st)] = n
	}

	eligible := 0
	if svc.Eligibility != nil {
		eligible = svc.Eligibility.Len()
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Queue: QueueHealth{
			Depth:    svc.Queue.Len(),
			Capacity: svc.Queue.Cap(),
		},
		Workers: WorkersHealth{
			Size:     s.pool.Workers(),
			InFlight: s.pool.InFlight(),
			Detached: s.pool.Detached(),
		},
		Jobs: jobCounts,
		Cache: CacheHealth{
			Entries:    svc.Cache.Len(),
			TTLSeconds: s.cfg.Cache.TTLSecs,
		},
		RateLimit: RateLimitHealth{
			PubkeyEntries: svc.PubkeyLimiter.Len(),
			IPEntries:     svc.IPLimiter.Len(),
			WindowSeconds: s.cfg.RateLimit.WindowSecs,
			MaxRequests:   s.cfg.RateLimit.MaxRequests,
		},
		Eligibility: eligible,
		Features: FeatureFlags{
			ProverMode:    s.cfg.Prover.Mode,
			ClaimCheck:    svc.Claims != nil,
			Eligibility:   svc.Eligibility != nil,
			VerifyOnChain: s.cfg.Prover.VerifyOnChain,
		},
	})
}

func statusFor(code jobs.Code) int {
	switch code {
	case jobs.CodeInvalidInput:
		return http.StatusBadRequest
	case jobs.CodeNotEligible:
		return http.StatusForbidden
	case jobs.CodeNotFound:
		return http.StatusNotFound
	case jobs.CodeAlreadyClaimed:
		return http.StatusConflict
	case jobs.CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case jobs.CodeRateLimited:
		return http.StatusTooManyRequests
	case jobs.CodeQueueFull, jobs.CodeRPCUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeRejection(w http.ResponseWriter, rej *Rejection) {
	writeError(w, statusFor(rej.Code), rej.Code, rej.Message, rej.RetryAfter)
}

// writeError writes the failure envelope. A positive retryAfter is rounded
// up to whole seconds and also sent as a Retry-After header.
func writeError(w http.ResponseWriter, status int, code jobs.Code, msg string, retryAfter time.Duration) {
	resp := ErrorResponse{
		Status: string(jobs.StateFailed),
		Code:   string(code),
		Error:  string(code) + ": " + msg,
	}
	if retryAfter > 0 {
		secs := int(math.Ceil(retryAfter.Seconds()))
		resp.RetryAfter = &secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("failed to encode response")
	}
}
