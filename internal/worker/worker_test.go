package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/opensource-finance/fathom/internal/bus"
	"github.com/opensource-finance/fathom/internal/domain"
	"github.com/opensource-finance/fathom/internal/insight"
	"github.com/opensource-finance/fathom/internal/metrics"
)

type fakeSource struct {
	insights map[domain.UserID]*domain.AggregateInsight
	err      error
}

func (f *fakeSource) GetInsight(_ context.Context, id domain.UserID) (*domain.AggregateInsight, error) {
	if f.err != nil {
		return nil, f.err
	}
	ins, ok := f.insights[id]
	if !ok {
		return nil, insight.ErrUserNotFound
	}
	return ins, nil
}

func newSource() *fakeSource {
	return &fakeSource{insights: map[domain.UserID]*domain.AggregateInsight{
		1: {
			UserID:           1,
			BehaviorInsight:  domain.BehaviorResult{BehaviorType: "Balanced", BehaviorRiskLevel: domain.RiskLow},
			FinancialInsight: domain.HealthResult{FinancialHealth: domain.HealthHealthy, Score: domain.RealTimeScore(4)},
		},
		2: {
			UserID:           2,
			BehaviorInsight:  domain.BehaviorResult{BehaviorType: "Consistently Overspending", BehaviorRiskLevel: domain.RiskVeryHigh},
			FinancialInsight: domain.HealthResult{FinancialHealth: domain.HealthCritical, Score: domain.RealTimeScore(-4)},
		},
	}}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collect subscribes to topic and returns received events on a channel.
func collect(t *testing.T, b domain.EventBus, topic string) <-chan domain.InsightEvent {
	t.Helper()
	out := make(chan domain.InsightEvent, 16)
	_, err := b.Subscribe(context.Background(), topic, func(_ context.Context, msg *domain.Message) error {
		var ev domain.InsightEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		out <- ev
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	return out
}

func receive(t *testing.T, ch <-chan domain.InsightEvent) domain.InsightEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for insight event")
		return domain.InsightEvent{}
	}
}

func TestWorker(t *testing.T) {
	ctx := context.Background()

	t.Run("StartAndStop", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		w := NewWorker(eventBus, newSource(), nil, quietLogger())
		if err := w.Start(Config{WorkerCount: 2}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}
		if len(stats.Topics) != 1 || stats.Topics[0] != domain.TopicInsightRequested {
			t.Errorf("topics = %v", stats.Topics)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if stats := w.GetStats(); stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ComputedPublished", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		reg := prometheus.NewRegistry()
		rec := metrics.New(reg)
		w := NewWorker(eventBus, newSource(), rec, quietLogger())
		if err := w.Start(Config{WorkerCount: 1}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		computed := collect(t, eventBus, domain.TopicInsightComputed)

		if _, err := Submit(ctx, eventBus, "batch-1", []domain.UserID{1}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}

		ev := receive(t, computed)
		if ev.BatchID != "batch-1" || ev.UserID != 1 {
			t.Errorf("event = %+v, want batch-1 user 1", ev)
		}
		if ev.Error != "" {
			t.Errorf("unexpected error %q", ev.Error)
		}
		if ev.Insight == nil || ev.Insight.FinancialInsight.Score != domain.RealTimeScore(4) {
			t.Errorf("insight = %+v, want realtime score 4", ev.Insight)
		}
	})

	t.Run("AlertPublished", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		w := NewWorker(eventBus, newSource(), nil, quietLogger())
		if err := w.Start(Config{WorkerCount: 1}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		alerts := collect(t, eventBus, domain.TopicInsightAlert)

		if _, err := Submit(ctx, eventBus, "batch-2", []domain.UserID{1, 2}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}

		ev := receive(t, alerts)
		if ev.UserID != 2 {
			t.Errorf("alert for user %d, want 2", ev.UserID)
		}
		select {
		case extra := <-alerts:
			t.Errorf("unexpected alert for user %d", extra.UserID)
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("UnknownUser", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		w := NewWorker(eventBus, newSource(), nil, quietLogger())
		if err := w.Start(Config{WorkerCount: 1}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		computed := collect(t, eventBus, domain.TopicInsightComputed)

		if _, err := Submit(ctx, eventBus, "batch-3", []domain.UserID{404}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}

		ev := receive(t, computed)
		if ev.Insight != nil {
			t.Errorf("expected no insight, got %+v", ev.Insight)
		}
		if ev.Error != insight.ErrUserNotFound.Error() {
			t.Errorf("error = %q, want %q", ev.Error, insight.ErrUserNotFound.Error())
		}
	})

	t.Run("SourceFailureHidesDetail", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		reg := prometheus.NewRegistry()
		rec := metrics.New(reg)
		src := &fakeSource{err: errors.New("connection refused on 10.0.0.3")}
		w := NewWorker(eventBus, src, rec, quietLogger())
		if err := w.Start(Config{WorkerCount: 1}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		computed := collect(t, eventBus, domain.TopicInsightComputed)

		if _, err := Submit(ctx, eventBus, "batch-4", []domain.UserID{1}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}

		ev := receive(t, computed)
		if ev.Error != "insight computation failed" {
			t.Errorf("error = %q", ev.Error)
		}
		expected := `
# HELP fathom_insight_requests_total Insight computations by source and outcome.
# TYPE fathom_insight_requests_total counter
fathom_insight_requests_total{outcome="error",source="worker"} 1
`
		if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "fathom_insight_requests_total"); err != nil {
			t.Error(err)
		}
	})

	t.Run("MalformedRequest", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		w := NewWorker(eventBus, newSource(), nil, quietLogger())
		if err := w.Start(Config{WorkerCount: 1}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		if err := eventBus.Publish(ctx, domain.TopicInsightRequested, []byte("not json")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		deadline := time.Now().Add(2 * time.Second)
		for w.GetStats().Failed == 0 {
			if time.Now().After(deadline) {
				t.Fatal("timeout waiting for failed count")
			}
			time.Sleep(10 * time.Millisecond)
		}
	})
}

func TestWorkerConcurrency(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	w := NewWorker(eventBus, newSource(), nil, quietLogger())
	if err := w.Start(Config{WorkerCount: 4}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	const total = 200
	var wg sync.WaitGroup
	wg.Add(total)
	_, err := eventBus.Subscribe(context.Background(), domain.TopicInsightComputed, func(context.Context, *domain.Message) error {
		wg.Done()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	ids := make([]domain.UserID, total)
	for i := range ids {
		ids[i] = domain.UserID(i%2 + 1)
	}
	sent, err := Submit(context.Background(), eventBus, "load", ids)
	if err != nil || sent != total {
		t.Fatalf("Submit sent %d, err %v", sent, err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for computed events")
	}

	deadline := time.Now().Add(2 * time.Second)
	for w.GetStats().Processed != total {
		if time.Now().After(deadline) {
			t.Fatalf("processed = %d, want %d", w.GetStats().Processed, total)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// panickingSource panics for one user and delegates the rest.
type panickingSource struct {
	*fakeSource
	bad domain.UserID
}

func (p *panickingSource) GetInsight(ctx context.Context, id domain.UserID) (*domain.AggregateInsight, error) {
	if id == p.bad {
		panic("cannot create a decimal from +Inf")
	}
	return p.fakeSource.GetInsight(ctx, id)
}

func TestWorkerSurvivesPanic(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	w := NewWorker(eventBus, &panickingSource{fakeSource: newSource(), bad: 3}, nil, quietLogger())
	if err := w.Start(Config{WorkerCount: 1}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	computed := collect(t, eventBus, domain.TopicInsightComputed)

	if _, err := Submit(context.Background(), eventBus, "bad", []domain.UserID{3}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	ev := receive(t, computed)
	if ev.UserID != 3 || ev.Error == "" || ev.Insight != nil {
		t.Errorf("expected an error event for user 3, got %+v", ev)
	}
	if strings.Contains(ev.Error, "decimal") {
		t.Errorf("panic value leaked into event: %q", ev.Error)
	}

	deadline := time.Now().Add(2 * time.Second)
	for w.GetStats().Failed != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("failed = %d, want 1", w.GetStats().Failed)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := Submit(context.Background(), eventBus, "good", []domain.UserID{1}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	ev = receive(t, computed)
	if ev.UserID != 1 || ev.Error != "" || ev.Insight == nil {
		t.Errorf("expected an insight for user 1 after the panic, got %+v", ev)
	}
}

func TestSubmitClosedBus(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	eventBus.Close()

	sent, err := Submit(context.Background(), eventBus, "b", []domain.UserID{1, 2})
	if err == nil {
		t.Fatal("expected error publishing to a closed bus")
	}
	if sent != 0 {
		t.Errorf("sent = %d, want 0", sent)
	}
}
