package api

// ProveResponse is returned by POST /prove on admission. ZKProof and
// PublicValues are only present when the proof came from the cache.
type ProveResponse struct {
	JobID        string `json:"jobId"`
	Status       string `json:"status"` // pending | completed
	ZKProof      string `json:"zkProof,omitempty"`
	PublicValues string `json:"publicValues,omitempty"`
}

// StatusResponse represents the state of a job as seen by GET /status/{jobId}.
type StatusResponse struct {
	Status       string `json:"status"` // pending | running | completed | failed
	ZKProof      string `json:"zkProof,omitempty"`
	PublicValues string `json:"publicValues,omitempty"`
	Code         string `json:"code,omitempty"`
	Error        string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Status     string `json:"status"`
	Code       string `json:"code"`
	Error      string `json:"error"`
	RetryAfter *int   `json:"retryAfter,omitempty"`
}

type HealthResponse struct {
	Status      string          `json:"status"`
	Queue       QueueHealth     `json:"queue"`
	Workers     WorkersHealth   `json:"workers"`
	Jobs        map[string]int  `json:"jobs"`
	Cache       CacheHealth     `json:"cache"`
	RateLimit   RateLimitHealth `json:"rateLimit"`
	Eligibility int             `json:"eligibilityEntries"`
	Features    FeatureFlags    `json:"features"`
}

type QueueHealth struct {
	Depth    int `json:"depth"`
	Capacity int `json:"capacity"`
}

type WorkersHealth struct {
	Size     int `json:"size"`
	InFlight int `json:"inFlight"`
	Detached int `json:"detached"`
}

type CacheHealth struct {
	Entries    int `json:"entries"`
	TTLSeconds int `json:"ttlSeconds"`
}

type RateLimitHealth struct {
	PubkeyEntries int `json:"pubkeyEntries"`
	IPEntries     int `json:"ipEntries"`
	WindowSeconds int `json:"windowSeconds"`
	MaxRequests   int `json:"maxRequests"`
}

type FeatureFlags struct {
	ProverMode    string `json:"proverMode"`
	ClaimCheck    bool   `json:"claimCheck"`
	Eligibility   bool   `json:"eligibility"`
	VerifyOnChain bool   `json:"verifyOnChain"`
}
