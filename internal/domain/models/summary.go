package models

import (
	"fmt"
	"time"
)

// Phase names reported in summaries and metrics.
const (
	PhaseSymbology = "symbology"
	PhaseIngest    = "ingest"
	PhaseValidate  = "validate"
)

// PhaseSummary counts what one phase run did.
type PhaseSummary struct {
	Phase     string         `json:"phase"`
	RunID     string         `json:"run_id"`
	Processed int            `json:"processed"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Rows      int            `json:"rows"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Details   map[string]int `json:"details,omitempty"`
}

// NewPhaseSummary starts a summary clock for the phase.
func NewPhaseSummary(phase, runID string) *PhaseSummary {
	return &PhaseSummary{Phase: phase, RunID: runID, StartedAt: time.Now(), Details: map[string]int{}}
}

// Add increments a detail counter.
func (s *PhaseSummary) Add(key string, n int) {
	if s.Details == nil {
		s.Details = map[string]int{}
	}
	s.Details[key] += n
}

// Finish stamps the elapsed time.
func (s *PhaseSummary) Finish() *PhaseSummary {
	s.Duration = time.Since(s.StartedAt)
	return s
}

func (s *PhaseSummary) String() string {
	return fmt.Sprintf("%s: processed=%d skipped=%d failed=%d rows=%d (%s)",
		s.Phase, s.Processed, s.Skipped, s.Failed, s.Rows, s.Duration.Round(time.Millisecond))
}

// DomainEvent is published after state changes other services may care about.
type DomainEvent struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// Event types.
const (
	EventSymbologyRebuilt = "symbology.rebuilt"
	EventConsensusUpdated = "consensus.updated"
	EventPhaseCompleted   = "phase.completed"
)

// ConsensusUpdate is the payload of EventConsensusUpdated.
type ConsensusUpdate struct {
	InstrumentID int64      `json:"instrument_id"`
	Table        PriceTable `json:"table"`
	Rows         int        `json:"rows"`
	From         time.Time  `json:"from"`
	To           time.Time  `json:"to"`
	Replaced     bool       `json:"replaced"`
}
