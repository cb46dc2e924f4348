package main

import (
	"fmt"
	"io"
	"time"

	"github.com/opensource-finance/heron/internal/domain"
)

// Metrics tracks benchmark results. Only auto_matched decisions count as
// predictions; review and reject outcomes are left to a person.
type Metrics struct {
	TruePositives  int // auto_matched to the expected transaction
	FalsePositives int // auto_matched to any other transaction
	FalseNegatives int // expected a match, not auto_matched to it
	TrueNegatives  int // no counterpart and not auto_matched

	TotalAlerts  int
	TotalLabeled int // alerts with an expected transaction

	// Status counts split by whether the alert has a counterpart.
	WithCounterpart    map[domain.MatchStatus]int
	WithoutCounterpart map[domain.MatchStatus]int
}

// Evaluate compares decisions with their labels. decisions[i] belongs to
// alerts[i].
func Evaluate(alerts []*LabelledAlert, decisions []*domain.MatchDecision) *Metrics {
	m := &Metrics{
		WithCounterpart:    make(map[domain.MatchStatus]int),
		WithoutCounterpart: make(map[domain.MatchStatus]int),
	}

	for i, la := range alerts {
		if i >= len(decisions) {
			break
		}
		d := decisions[i]
		m.TotalAlerts++

		expected := la.ExpectedTransactionID
		predicted := d.Status == domain.StatusAutoMatched

		if expected != "" {
			m.TotalLabeled++
			m.WithCounterpart[d.Status]++
		} else {
			m.WithoutCounterpart[d.Status]++
		}

		switch {
		case predicted && d.TransactionID() == expected:
			m.TruePositives++
		case predicted:
			m.FalsePositives++
			if expected != "" {
				m.FalseNegatives++
			}
		case expected != "":
			m.FalseNegatives++
		default:
			m.TrueNegatives++
		}
	}
	return m
}

// Precision is TP / (TP + FP).
func (m *Metrics) Precision() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
}

// Recall is TP / (TP + FN).
func (m *Metrics) Recall() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
}

// F1 is the harmonic mean of precision and recall.
func (m *Metrics) F1() float64 {
	p, r := m.Precision(), m.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

var statusOrder = []domain.MatchStatus{
	domain.StatusAutoMatched,
	domain.StatusNeedsReview,
	domain.StatusRejected,
	domain.StatusNoCandidates,
	domain.StatusError,
}

func printResults(w io.Writer, m *Metrics, duration time.Duration) {
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════")
	fmt.Fprintln(w, "                        BENCHMARK RESULTS")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════")

	fmt.Fprintf(w, "\nProcessed:  %d alerts in %v", m.TotalAlerts, duration.Round(time.Millisecond))
	if m.TotalAlerts > 0 {
		fmt.Fprintf(w, " (%.0f alerts/sec)", float64(m.TotalAlerts)/duration.Seconds())
	}
	fmt.Fprintf(w, "\nLabelled:   %d with a counterpart, %d without\n", m.TotalLabeled, m.TotalAlerts-m.TotalLabeled)

	fmt.Fprintln(w, "\n┌─────────────────────────────────────────────────────────────┐")
	fmt.Fprintln(w, "│                    AUTO-MATCH CONFUSION                     │")
	fmt.Fprintln(w, "├─────────────────────────────────────────────────────────────┤")
	fmt.Fprintf(w, "│  True Positives  (correct auto-match):    %8d          │\n", m.TruePositives)
	fmt.Fprintf(w, "│  False Positives (wrong auto-match):      %8d          │\n", m.FalsePositives)
	fmt.Fprintf(w, "│  False Negatives (match not automated):   %8d          │\n", m.FalseNegatives)
	fmt.Fprintf(w, "│  True Negatives  (correctly left alone):  %8d          │\n", m.TrueNegatives)
	fmt.Fprintln(w, "└─────────────────────────────────────────────────────────────┘")

	fmt.Fprintln(w, "\nStatus counts:")
	fmt.Fprintf(w, "  %-14s %12s %12s\n", "status", "counterpart", "none")
	for _, s := range statusOrder {
		fmt.Fprintf(w, "  %-14s %12d %12d\n", s, m.WithCounterpart[s], m.WithoutCounterpart[s])
	}

	fmt.Fprintln(w, "\nAccuracy:")
	fmt.Fprintf(w, "  Precision: %6.2f%%\n", 100*m.Precision())
	fmt.Fprintf(w, "  Recall:    %6.2f%%\n", 100*m.Recall())
	fmt.Fprintf(w, "  F1 Score:  %6.2f%%\n", 100*m.F1())
}

func printDecisions(w io.Writer, alerts []*LabelledAlert, decisions []*domain.MatchDecision) {
	for i, d := range decisions {
		if i >= len(alerts) {
			break
		}
		expected := alerts[i].ExpectedTransactionID
		mark := "✓"
		switch {
		case d.Status == domain.StatusAutoMatched && d.TransactionID() != expected:
			mark = "✗"
		case d.Status != domain.StatusAutoMatched && expected != "":
			mark = "·"
		}
		fmt.Fprintf(w, "%s %-12s | %-13s (%.2f) | got: %-12s | want: %s\n",
			mark, d.AlertID, d.Status, d.Confidence, d.TransactionID(), expected)
	}
	fmt.Fprintln(w)
}
