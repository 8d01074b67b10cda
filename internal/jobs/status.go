package jobs

// Code is a stable, machine-readable failure code shared by admission
// rejections and failed jobs.
type Code string

const (
	CodeInvalidInput    Code = "invalid_input"
	CodeAlreadyClaimed  Code = "already_claimed"
	CodeNotEligible     Code = "not_eligible"
	CodeRateLimited     Code = "rate_limited"
	CodeQueueFull       Code = "queue_full"
	CodeTimeout         Code = "timeout"
	CodeRPCUnavailable  Code = "rpc_unavailable"
	CodeProofFailed     Code = "proof_failed"
	CodeNotFound        Code = "not_found"
	CodeInternalError   Code = "internal_error"
	CodePayloadTooLarge Code = "payload_too_large"
)

type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Status is the lifecycle state of a job together with its payload. Proof
// and PublicValues are only set for completed jobs, Code and Error only for
// failed ones.
type Status struct {
	State        State
	Proof        string
	PublicValues string
	Code         Code
	Error        string
}

func Pending() Status { return Status{State: StatePending} }

func Running() Status { return Status{State: StateRunning} }

func Completed(proof, publicValues string) Status {
	return Status{State: StateCompleted, Proof: proof, PublicValues: publicValues}
}

// Failed builds a failed status whose message starts with the code, e.g.
// "timeout: exceeded 300 seconds".
func Failed(code Code, msg string) Status {
	return Status{State: StateFailed, Code: code, Error: string(code) + ": " + msg}
}

// Terminal reports whether no further transition may leave this status.
func (s Status) Terminal() bool {
	return s.State == StateCompleted || s.State == StateFailed
}

// canTransition encodes the job state machine.
func canTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateRunning || to == StateFailed
	case StateRunning:
		return to == StateCompleted || to == StateFailed
	default:
		return false
	}
}
