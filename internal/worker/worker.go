// Package worker matches alerts delivered over the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/heron/internal/decision"
	"github.com/opensource-finance/heron/internal/domain"
)

// Worker consumes alert messages, matches each one with claims committed
// optimistically, stores the decision and publishes it.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	engine *decision.Engine
	claims domain.ClaimStore

	sem       chan struct{}
	processed atomic.Int64
	failed    atomic.Int64

	mu            sync.Mutex
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker. repo may be nil, in which case
// decisions are published but not stored. A nil claim store falls back to
// the repository.
func NewWorker(bus domain.EventBus, repo domain.Repository, engine *decision.Engine, claims domain.ClaimStore) (*Worker, error) {
	if bus == nil || engine == nil {
		return nil, fmt.Errorf("%w: bus and engine are required", domain.ErrInvalidInput)
	}
	if claims == nil {
		if repo == nil {
			return nil, fmt.Errorf("%w: a claim store or repository is required", domain.ErrInvalidInput)
		}
		claims = repo
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		engine: engine,
		claims: claims,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start subscribes to the alert topic.
func (w *Worker) Start(cfg domain.WorkerConfig) error {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	w.sem = make(chan struct{}, maxConcurrent)

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicAlertIngested, w.handleMessage)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("worker started",
		"topic", domain.TopicAlertIngested,
		"max_concurrent", maxConcurrent,
	)
	return nil
}

// handleMessage hands the message to a bounded goroutine so a slow match
// does not hold up delivery.
func (w *Worker) handleMessage(_ context.Context, msg *domain.Message) error {
	select {
	case w.sem <- struct{}{}:
	case <-w.ctx.Done():
		return w.ctx.Err()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()

		if err := w.processAlert(w.ctx, msg); err != nil {
			w.failed.Add(1)
			slog.Error("alert message failed",
				"message_id", msg.ID,
				"error", err,
			)
			return
		}
		w.processed.Add(1)
	}()
	return nil
}

// processAlert matches one alert through the pipeline.
func (w *Worker) processAlert(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	// Parse message
	var am domain.AlertMessage
	if err := json.Unmarshal(msg.Payload, &am); err != nil {
		return fmt.Errorf("%w: failed to parse alert message: %v", domain.ErrInvalidInput, err)
	}
	if am.Alert == nil {
		return fmt.Errorf("%w: alert message %s has no alert", domain.ErrInvalidInput, msg.ID)
	}
	alert := am.Alert

	// 1. Store the alert so unmatched alerts can be listed later
	if w.repo != nil {
		if err := w.repo.SaveAlert(ctx, alert); err != nil {
			slog.Error("failed to save alert",
				"alert_id", alert.ID,
				"error", err,
			)
		}
	}

	// 2. Match and claim
	d, err := w.engine.MatchAndClaim(ctx, alert, w.claims)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		slog.Warn("alert failed",
			"alert_id", alert.ID,
			"error", err,
		)
		d = domain.NewErrorDecision(alert, err)
	}

	// 3. Save decision
	rec := domain.NewDecisionRecord(am.BatchID, d)
	if w.repo != nil {
		if err := w.repo.SaveDecision(ctx, rec); err != nil {
			slog.Error("failed to save decision",
				"alert_id", alert.ID,
				"error", err,
			)
		}
	}

	// 4. Publish result to decision topic
	payload, err := json.Marshal(domain.DecisionMessage{
		DecisionID: rec.ID,
		BatchID:    am.BatchID,
		Decision:   d,
	})
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}

	if err := w.bus.Publish(ctx, domain.TopicDecision, payload); err != nil {
		slog.Error("failed to publish decision",
			"alert_id", alert.ID,
			"error", err,
		)
	}

	// 5. Route uncertain matches to review
	if d.Status == domain.StatusNeedsReview {
		if err := w.bus.Publish(ctx, domain.TopicReview, payload); err != nil {
			slog.Error("failed to publish review",
				"alert_id", alert.ID,
				"error", err,
			)
		}
	}

	slog.Info("alert processed",
		"alert_id", alert.ID,
		"txn_id", d.TransactionID(),
		"status", d.Status,
		"confidence", d.Confidence,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker and waits for in-flight alerts.
func (w *Worker) Stop() error {
	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	// Unsubscribe all
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	w.cancel()
	w.wg.Wait()

	slog.Info("worker stopped",
		"processed", w.processed.Load(),
		"failed", w.failed.Load(),
	)
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
