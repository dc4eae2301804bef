// Package api defines the transport DTOs shared by the daemon HTTP server
// and the CLI client, plus the read-side service that produces them.
package api

// Job describes an outbox job in a transport-friendly format.
type Job struct {
	ID              int64   `json:"id"`
	EvidenceID      string  `json:"evidenceId"`
	Digest          string  `json:"digest"`
	Status          string  `json:"status"`
	Attempts        int     `json:"attempts"`
	ConfirmAttempts int     `json:"confirmAttempts"`
	BatchID         string  `json:"batchId,omitempty"`
	ErrorMessage    string  `json:"errorMessage,omitempty"`
	CreatedAt       string  `json:"createdAt,omitempty"`
	UpdatedAt       string  `json:"updatedAt,omitempty"`
	TxRefs          []TxRef `json:"txRefs,omitempty"`
}

// TxRef describes one ledger submission of a batch root.
type TxRef struct {
	Provider    string `json:"provider"`
	TxID        string `json:"txId"`
	Status      string `json:"status"`
	SubmittedAt string `json:"submittedAt,omitempty"`
	ConfirmedAt string `json:"confirmedAt,omitempty"`
}

// EvidenceRequest is the POST /api/evidence payload.
type EvidenceRequest struct {
	EvidenceID  string            `json:"evidence_id"`
	Digest      string            `json:"digest"`
	PayloadMIME string            `json:"payload_mime,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ProofBundle carries the self-contained verification material for one
// evidence record.
type ProofBundle struct {
	EvidenceID string  `json:"evidenceId"`
	Digest     string  `json:"digest"`
	Status     string  `json:"status"`
	BatchID    string  `json:"batchId"`
	LeafIndex  int     `json:"leafIndex"`
	Proof      string  `json:"proof"`
	Root       string  `json:"root"`
	TxRefs     []TxRef `json:"txRefs"`
}

// LoopStatus reports liveness of one scheduler loop.
type LoopStatus struct {
	Alive    bool   `json:"alive"`
	LastPoll string `json:"lastPoll,omitempty"`
}

// HealthResponse is the GET /api/health payload.
type HealthResponse struct {
	Healthy     bool       `json:"healthy"`
	SubmitLoop  LoopStatus `json:"submitLoop"`
	ConfirmLoop LoopStatus `json:"confirmLoop"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	OutboxDBPath string         `json:"outboxDbPath"`
	LockFilePath string         `json:"lockFilePath"`
	Provider     string         `json:"provider"`
	Health       HealthResponse `json:"health"`
	QueueStats   map[string]int `json:"queueStats"`
}

// JobListResponse wraps a collection of jobs for API responses.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job payload.
type JobResponse struct {
	Job Job `json:"job"`
}

// SubmitResponse is returned from POST /api/evidence.
type SubmitResponse struct {
	Job       Job  `json:"job"`
	Duplicate bool `json:"duplicate"`
}
