package sink

import (
	"strconv"
	"time"
)

// Record is one completed proof as written to the archive.
type Record struct {
	JobID        string
	PublicKey    string
	Recipient    string
	Amount       string
	Fingerprint  string
	Proof        string
	PublicValues string
	ProvedAt     time.Time
	Duration     time.Duration
}

var recordHeaders = []string{
	"proved_at", "job_id", "pubkey", "recipient", "amount",
	"fingerprint", "duration_ms", "proof", "public_values",
}

func (r Record) row() []string {
	return []string{
		r.ProvedAt.UTC().Format(time.RFC3339),
		r.JobID,
		r.PublicKey,
		r.Recipient,
		r.Amount,
		r.Fingerprint,
		strconv.FormatInt(r.Duration.Milliseconds(), 10),
		r.Proof,
		r.PublicValues,
	}
}

// Sink defines the behaviour expected from any proof archive back-end.
// Implementations must be safe for concurrent use; every worker writes to
// the same sink.
type Sink interface {
	Write(Record) error
}
