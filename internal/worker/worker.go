// Package worker computes insights asynchronously from the EventBus.
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

	"github.com/opensource-finance/fathom/internal/domain"
	"github.com/opensource-finance/fathom/internal/insight"
	"github.com/opensource-finance/fathom/internal/metrics"
)

// Source is what the worker needs from the aggregator.
type Source interface {
	GetInsight(ctx context.Context, userID domain.UserID) (*domain.AggregateInsight, error)
}

// Worker consumes insight requests and publishes computed insights.
type Worker struct {
	bus     domain.EventBus
	source  Source
	metrics *metrics.Recorder
	logger  *slog.Logger

	jobs      chan *domain.Message
	processed atomic.Int64
	failed    atomic.Int64

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// WorkerCount is the number of concurrent insight computations.
	WorkerCount int
}

// NewWorker creates a new async worker. rec and logger may be nil.
func NewWorker(bus domain.EventBus, source Source, rec *metrics.Recorder, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		source:  source,
		metrics: rec,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to insight requests and starts WorkerCount processors.
func (w *Worker) Start(cfg Config) error {
	count := cfg.WorkerCount
	if count <= 0 {
		count = 1
	}

	w.jobs = make(chan *domain.Message, count)
	for i := 0; i < count; i++ {
		w.wg.Add(1)
		go w.loop()
	}

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicInsightRequested, w.enqueue)
	if err != nil {
		w.cancel()
		w.wg.Wait()
		return fmt.Errorf("failed to subscribe to %s: %w", domain.TopicInsightRequested, err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	w.logger.Info("workers started",
		"worker_count", count,
		"topic", domain.TopicInsightRequested,
	)
	return nil
}

// enqueue hands a message to a processor, waiting while all are busy.
func (w *Worker) enqueue(ctx context.Context, msg *domain.Message) error {
	select {
	case w.jobs <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return w.ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case msg := <-w.jobs:
			w.handle(msg)
		}
	}
}

// handle runs one request. A panic in the computation is counted as a
// failure and reported to the requester as an error event.
func (w *Worker) handle(msg *domain.Message) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		w.failed.Add(1)
		w.logger.Error("panic processing insight request",
			"message_id", msg.ID,
			"panic", rec,
		)
		w.publishFailure(msg)
	}()

	if err := w.processRequest(w.ctx, msg); err != nil {
		w.failed.Add(1)
	}
}

func (w *Worker) publishFailure(msg *domain.Message) {
	var req domain.InsightRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return
	}
	payload, err := json.Marshal(domain.InsightEvent{
		BatchID: req.BatchID,
		UserID:  req.UserID,
		Error:   "insight computation failed",
	})
	if err != nil {
		return
	}
	if err := w.bus.Publish(w.ctx, domain.TopicInsightComputed, payload); err != nil {
		w.logger.Error("failed to publish insight failure",
			"batch_id", req.BatchID,
			"user_id", req.UserID,
			"error", err,
		)
	}
}

// processRequest computes one insight and publishes the result.
func (w *Worker) processRequest(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req domain.InsightRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		w.logger.Error("failed to parse insight request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	ins, err := w.source.GetInsight(ctx, req.UserID)
	w.metrics.ObserveInsight("worker", insight.Outcome(err), time.Since(start))

	event := domain.InsightEvent{
		BatchID: req.BatchID,
		UserID:  req.UserID,
		Insight: ins,
	}
	switch {
	case errors.Is(err, insight.ErrUserNotFound):
		event.Error = insight.ErrUserNotFound.Error()
	case err != nil:
		w.logger.Error("insight computation failed",
			"batch_id", req.BatchID,
			"user_id", req.UserID,
			"error", err,
		)
		event.Error = "insight computation failed"
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode insight event: %w", err)
	}

	if err := w.bus.Publish(ctx, domain.TopicInsightComputed, payload); err != nil {
		w.logger.Error("failed to publish insight",
			"batch_id", req.BatchID,
			"user_id", req.UserID,
			"error", err,
		)
		return err
	}

	if insight.ShouldAlert(ins) {
		if err := w.bus.Publish(ctx, domain.TopicInsightAlert, payload); err != nil {
			w.logger.Error("failed to publish alert",
				"batch_id", req.BatchID,
				"user_id", req.UserID,
				"error", err,
			)
		}
	}

	w.processed.Add(1)

	attrs := []any{
		"batch_id", req.BatchID,
		"user_id", req.UserID,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if ins != nil {
		attrs = append(attrs,
			"health", ins.FinancialInsight.FinancialHealth,
			"behavior_risk", ins.BehaviorInsight.BehaviorRiskLevel,
		)
	}
	if event.Error != "" {
		attrs = append(attrs, "error", event.Error)
	}
	w.logger.Info("insight processed", attrs...)

	return nil
}

// Stop gracefully stops all workers. Requests still queued are dropped.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	w.logger.Info("workers stopped",
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

// Submit publishes one insight request per user under batchID. It stops at
// the first publish error and returns how many requests were sent.
func Submit(ctx context.Context, bus domain.EventBus, batchID string, userIDs []domain.UserID) (int, error) {
	for i, id := range userIDs {
		payload, err := json.Marshal(domain.InsightRequest{BatchID: batchID, UserID: id})
		if err != nil {
			return i, fmt.Errorf("failed to encode insight request: %w", err)
		}
		if err := bus.Publish(ctx, domain.TopicInsightRequested, payload); err != nil {
			return i, fmt.Errorf("failed to publish insight request: %w", err)
		}
	}
	return len(userIDs), nil
}
