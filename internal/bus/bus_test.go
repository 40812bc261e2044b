package bus

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	b := New()

	var got []Event
	b.Subscribe(EventTaskCompleted, func(e Event) {
		got = append(got, e)
	})

	b.Publish(EventTaskCompleted, "payload", PublishOptions{Source: "test"})

	if len(got) != 1 {
		t.Fatalf("expected 1 delivered event, got %d", len(got))
	}
	if got[0].Data != "payload" {
		t.Errorf("expected payload data, got %v", got[0].Data)
	}
	if got[0].Source != "test" {
		t.Errorf("expected source test, got %q", got[0].Source)
	}
	if got[0].ID == "" {
		t.Error("expected event ID to be stamped")
	}
}

func TestSubscriberPriorityOrdering(t *testing.T) {
	b := New()

	var order []string
	b.Subscribe(EventTaskStarted, func(Event) {
		order = append(order, "low")
	}, SubscribeOptions{Priority: 1})
	b.Subscribe(EventTaskStarted, func(Event) {
		order = append(order, "high")
	}, SubscribeOptions{Priority: 10})

	// Ordering must hold for every subsequent publish of the type.
	for i := 0; i < 3; i++ {
		order = nil
		b.Publish(EventTaskStarted, i)
		if len(order) != 2 || order[0] != "high" || order[1] != "low" {
			t.Fatalf("publish %d: expected [high low], got %v", i, order)
		}
	}
}

func TestSubscriberFilter(t *testing.T) {
	b := New()

	var count int
	b.Subscribe(EventTaskCompleted, func(Event) {
		count++
	}, SubscribeOptions{
		Filter: func(e Event) bool { return e.Source == "router" },
	})

	b.Publish(EventTaskCompleted, nil, PublishOptions{Source: "workflow"})
	b.Publish(EventTaskCompleted, nil, PublishOptions{Source: "router"})

	if count != 1 {
		t.Errorf("expected 1 filtered delivery, got %d", count)
	}
}

func TestSubscribeOnce(t *testing.T) {
	b := New()

	var count int
	b.SubscribeOnce(EventTaskFailed, func(Event) {
		count++
	})

	b.Publish(EventTaskFailed, nil)
	b.Publish(EventTaskFailed, nil)

	if count != 1 {
		t.Errorf("expected once subscriber to fire exactly once, got %d", count)
	}
	if n := b.SubscriberCount(EventTaskFailed); n != 0 {
		t.Errorf("expected once subscriber to be removed, %d remain", n)
	}
}

func TestOnceSubscriberSurvivesFilterSkip(t *testing.T) {
	b := New()

	var count int
	b.Subscribe(EventTaskCompleted, func(Event) {
		count++
	}, SubscribeOptions{
		Once:   true,
		Filter: func(e Event) bool { return e.Source == "match" },
	})

	// A skipped event must not consume the once subscription.
	b.Publish(EventTaskCompleted, nil, PublishOptions{Source: "skip"})
	if n := b.SubscriberCount(EventTaskCompleted); n != 1 {
		t.Fatalf("expected subscription to survive filter skip, %d remain", n)
	}

	b.Publish(EventTaskCompleted, nil, PublishOptions{Source: "match"})
	if count != 1 {
		t.Errorf("expected 1 delivery, got %d", count)
	}
	if n := b.SubscriberCount(EventTaskCompleted); n != 0 {
		t.Errorf("expected subscription removed after delivery, %d remain", n)
	}
}

func TestSubscriberPanicIsolation(t *testing.T) {
	b := New()

	var delivered bool
	b.Subscribe(EventAgentError, func(Event) {
		panic("subscriber blew up")
	}, SubscribeOptions{Priority: 10})
	b.Subscribe(EventAgentError, func(Event) {
		delivered = true
	})

	// Publish must not panic and must still reach the second subscriber.
	b.Publish(EventAgentError, nil)

	if !delivered {
		t.Error("expected delivery to continue past a panicking subscriber")
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()

	var count int
	sub := b.Subscribe(EventAgentMessage, func(Event) { count++ })
	b.Publish(EventAgentMessage, nil)
	sub.Unsubscribe()
	sub.Unsubscribe() // safe to call twice
	b.Publish(EventAgentMessage, nil)

	if count != 1 {
		t.Errorf("expected 1 delivery before unsubscribe, got %d", count)
	}
}

func TestWaitForReceivesEvent(t *testing.T) {
	b := New()

	done := make(chan struct{})
	var got Event
	var err error
	go func() {
		got, err = b.WaitFor(context.Background(), EventTaskCompleted, time.Second, nil)
		close(done)
	}()

	// Give the waiter time to subscribe.
	time.Sleep(20 * time.Millisecond)
	b.Publish(EventTaskCompleted, "result")

	<-done
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Data != "result" {
		t.Errorf("expected result data, got %v", got.Data)
	}
}

func TestWaitForTimeoutIsLeakFree(t *testing.T) {
	b := New()

	before := b.SubscriberCount(EventTaskCompleted)
	_, err := b.WaitFor(context.Background(), EventTaskCompleted, 50*time.Millisecond, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("expected ErrWaitTimeout, got %v", err)
	}
	if after := b.SubscriberCount(EventTaskCompleted); after != before {
		t.Errorf("subscription leaked: before=%d after=%d", before, after)
	}
}

func TestHistoryEvictsOldestFirst(t *testing.T) {
	b := New()

	// Publish one more event than the cap; the first must be evicted.
	for i := 0; i <= DefaultHistoryCap; i++ {
		typ := EventTaskCreated
		if i%3 == 0 {
			typ = EventTaskCompleted
		}
		b.Publish(typ, i)
	}

	history := b.History(nil)
	if len(history) != DefaultHistoryCap {
		t.Fatalf("expected exactly %d retained events, got %d", DefaultHistoryCap, len(history))
	}
	if history[0].Data != 1 {
		t.Errorf("expected oldest event (0) evicted, head is %v", history[0].Data)
	}
}

func TestHistoryTimestampsNonDecreasing(t *testing.T) {
	b := New(WithHistoryCap(100))

	for i := 0; i < 50; i++ {
		b.Publish(EventTaskCreated, i)
	}

	history := b.History(nil)
	for i := 1; i < len(history); i++ {
		if history[i].Timestamp.Before(history[i-1].Timestamp) {
			t.Fatalf("timestamp at %d precedes its predecessor", i)
		}
	}
}

func TestHistoryFilter(t *testing.T) {
	b := New()
	b.Publish(EventTaskCreated, nil)
	b.Publish(EventTaskCompleted, nil)
	b.Publish(EventTaskCreated, nil)

	created := b.History(func(e Event) bool { return e.Type == EventTaskCreated })
	if len(created) != 2 {
		t.Errorf("expected 2 task.created events, got %d", len(created))
	}
}

func TestMetrics(t *testing.T) {
	b := New()
	for i := 0; i < 5; i++ {
		b.Publish(EventToolExecuted, i)
	}
	b.Publish(EventToolFailed, nil)

	m := b.Metrics()
	if m[EventToolExecuted].Count != 5 {
		t.Errorf("expected 5 tool.executed, got %d", m[EventToolExecuted].Count)
	}
	if m[EventToolFailed].Count != 1 {
		t.Errorf("expected 1 tool.failed, got %d", m[EventToolFailed].Count)
	}
	if m[EventToolExecuted].PerMinute <= 0 {
		t.Error("expected a positive per-minute rate")
	}
}

func TestSubscriberCountAllTypes(t *testing.T) {
	b := New()
	for i := 0; i < 3; i++ {
		b.Subscribe(EventType(fmt.Sprintf("test.type%d", i)), func(Event) {})
	}
	if n := b.SubscriberCount(); n != 3 {
		t.Errorf("expected 3 total subscribers, got %d", n)
	}
}
