package domain

import (
	"time"

	"github.com/google/uuid"
)

// MatchStatus is the outcome class of a decision.
type MatchStatus string

// Decision status constants
const (
	StatusAutoMatched  MatchStatus = "auto_matched"
	StatusNeedsReview  MatchStatus = "needs_review"
	StatusRejected     MatchStatus = "rejected"
	StatusNoCandidates MatchStatus = "no_candidates"

	// StatusError marks a per-alert failure inside a batch.
	StatusError MatchStatus = "error"
)

// MatchCandidate is one scored transaction for an alert.
type MatchCandidate struct {
	Transaction *Transaction `json:"transaction"`
	RuleScores  []RuleScore  `json:"ruleScores"`
	TotalScore  float64      `json:"totalScore"`

	// Tie-break results are kept apart from TotalScore.
	TieBreakScore float64 `json:"tieBreakScore,omitempty"`
	TieBreakBonus float64 `json:"tieBreakBonus,omitempty"`

	Rank int `json:"rank"`
}

// RankScore is the value candidates are ordered by after tie-breaking.
func (c *MatchCandidate) RankScore() float64 {
	return c.TotalScore + c.TieBreakBonus
}

// RuleScore returns the score of the named rule, or 0 if absent.
func (c *MatchCandidate) RuleScore(rule string) float64 {
	for _, rs := range c.RuleScores {
		if rs.Rule == rule {
			return rs.Score
		}
	}
	return 0
}

// MatchDecision is the engine's verdict for one alert.
// Confidence always equals BestCandidate.TotalScore, or 0 without a candidate.
type MatchDecision struct {
	AlertID       string            `json:"alertId"`
	Matched       bool              `json:"matched"`
	Status        MatchStatus       `json:"status"`
	Confidence    float64           `json:"confidence"`
	BestCandidate *MatchCandidate   `json:"bestCandidate,omitempty"`
	Alternatives  []*MatchCandidate `json:"alternatives,omitempty"`
	Notes         []string          `json:"notes,omitempty"`
}

// TransactionID returns the best candidate's transaction id, if any.
func (d *MatchDecision) TransactionID() string {
	if d == nil || d.BestCandidate == nil || d.BestCandidate.Transaction == nil {
		return ""
	}
	return d.BestCandidate.Transaction.ID
}

// BatchStats summarizes a batch run.
type BatchStats struct {
	Total             int     `json:"total"`
	AutoMatched       int     `json:"autoMatched"`
	NeedsReview       int     `json:"needsReview"`
	Rejected          int     `json:"rejected"`
	NoCandidates      int     `json:"noCandidates"`
	Errors            int     `json:"errors"`
	AverageConfidence float64 `json:"averageConfidence"`

	confidenceSum float64
}

// Add counts one decision. Call Finalize once all decisions are added.
func (s *BatchStats) Add(d *MatchDecision) {
	s.Total++
	switch d.Status {
	case StatusAutoMatched:
		s.AutoMatched++
	case StatusNeedsReview:
		s.NeedsReview++
	case StatusRejected:
		s.Rejected++
	case StatusNoCandidates:
		s.NoCandidates++
	case StatusError:
		s.Errors++
		return
	}
	s.confidenceSum += d.Confidence
}

// Finalize computes the mean confidence over non-error decisions.
func (s *BatchStats) Finalize() {
	scored := s.Total - s.Errors
	if scored == 0 {
		s.AverageConfidence = 0
		return
	}
	s.AverageConfidence = s.confidenceSum / float64(scored)
}

// BatchResult holds the decisions of a batch in input order.
type BatchResult struct {
	BatchID     string           `json:"batchId"`
	Mode        string           `json:"mode"`
	Decisions   []*MatchDecision `json:"decisions"`
	Stats       BatchStats       `json:"stats"`
	StartedAt   time.Time        `json:"startedAt"`
	CompletedAt time.Time        `json:"completedAt"`
}

// DecisionRecord is a persisted decision.
type DecisionRecord struct {
	ID            string         `json:"id"`
	BatchID       string         `json:"batchId,omitempty"`
	AlertID       string         `json:"alertId"`
	TransactionID string         `json:"transactionId,omitempty"`
	Status        MatchStatus    `json:"status"`
	Confidence    float64        `json:"confidence"`
	Decision      *MatchDecision `json:"decision"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// NewDecisionRecord wraps a decision for persistence under a fresh id.
func NewDecisionRecord(batchID string, d *MatchDecision) *DecisionRecord {
	return &DecisionRecord{
		ID:            uuid.New().String(),
		BatchID:       batchID,
		AlertID:       d.AlertID,
		TransactionID: d.TransactionID(),
		Status:        d.Status,
		Confidence:    d.Confidence,
		Decision:      d,
		CreatedAt:     time.Now().UTC(),
	}
}

// NewErrorDecision records a per-alert failure. alert may be nil.
func NewErrorDecision(alert *Alert, err error) *MatchDecision {
	d := &MatchDecision{Status: StatusError, Notes: []string{err.Error()}}
	if alert != nil {
		d.AlertID = alert.ID
	}
	return d
}
