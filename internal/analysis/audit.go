package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// AuditRecord captures one committed configuration change: the resulting
// config, a content hash for tamper-evident logging, and the timestamp of
// the commit. Adapted from the teacher's configx validate->commit->audit
// skeleton, stripped of rollout/simulation/cohort concepts that have no
// analogue for a single-session analysis configuration.
type AuditRecord struct {
	Config    Config
	Hash      string
	CommittedAt time.Time
}

// Auditor appends an AuditRecord every time a State's configuration is
// successfully mutated. It is optional: a State with no Auditor attached
// behaves exactly as before.
type Auditor struct {
	mu      sync.Mutex
	records []AuditRecord
	now     func() time.Time
}

// NewAuditor constructs an empty Auditor.
func NewAuditor() *Auditor {
	return &Auditor{now: time.Now}
}

// record hashes cfg's YAML encoding and appends an AuditRecord. YAML
// mirrors the teacher's own configx snapshot format; a marshal failure
// (impossible for this plain struct) is treated as a non-fatal no-op,
// matching the audit trail's "best effort, never blocks commit" role.
func (a *Auditor) record(cfg Config) {
	a.mu.Lock()
	defer a.mu.Unlock()
	blob, err := yaml.Marshal(cfg)
	if err != nil {
		return
	}
	sum := sha256.Sum256(blob)
	a.records = append(a.records, AuditRecord{
		Config:      cfg,
		Hash:        hex.EncodeToString(sum[:]),
		CommittedAt: a.now(),
	})
}

// Records returns a copy of the audit trail collected so far, oldest
// first.
func (a *Auditor) Records() []AuditRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AuditRecord, len(a.records))
	copy(out, a.records)
	return out
}

// MarshalJSON exists so AuditRecord prints deterministically in logs; the
// hash is the commit's content fingerprint, not a secret.
func (r AuditRecord) MarshalJSON() ([]byte, error) {
	type alias struct {
		Method      string    `json:"method"`
		WindowSize  int       `json:"window_size"`
		Threshold   float64   `json:"score_threshold"`
		Hash        string    `json:"hash"`
		CommittedAt time.Time `json:"committed_at"`
	}
	return json.Marshal(alias{
		Method:      r.Config.Method,
		WindowSize:  r.Config.WindowSize,
		Threshold:   r.Config.Threshold,
		Hash:        r.Hash,
		CommittedAt: r.CommittedAt,
	})
}

// WithAuditor attaches an Auditor to s; every subsequent successful
// SetMethod/SetWindowSize/SetScoreThreshold call appends a record.
func (s *State) WithAuditor(a *Auditor) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditor = a
	return s
}
