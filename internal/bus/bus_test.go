package bus

import (
	"sync"
	"testing"

	"github.com/johnrirwin/orbitsafe/internal/logging"
	"github.com/johnrirwin/orbitsafe/internal/models"
)

func newTestBus() *Bus {
	return New(logging.New(logging.LevelError))
}

func TestPublish_FanOutInOrder(t *testing.T) {
	b := newTestBus()

	var got []string
	b.Subscribe(func(e Event) { got = append(got, "a:"+string(e.Kind)+":"+e.Record.ID) })
	b.Subscribe(func(e Event) { got = append(got, "b:"+string(e.Kind)+":"+e.Record.ID) })

	b.PublishCreated(models.ImageRecord{ID: "1"})
	b.PublishUpdated(models.ImageRecord{ID: "1"})

	want := []string{"a:created:1", "b:created:1", "a:updated:1", "b:updated:1"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivery %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSubscribe_NoReplay(t *testing.T) {
	b := newTestBus()
	b.PublishCreated(models.ImageRecord{ID: "early"})

	calls := 0
	b.Subscribe(func(Event) { calls++ })
	if calls != 0 {
		t.Fatalf("late subscriber received %d retroactive events", calls)
	}

	b.PublishCreated(models.ImageRecord{ID: "late"})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestUnsubscribe_DuringDelivery(t *testing.T) {
	b := newTestBus()

	var order []string
	var second *Subscription

	first := b.Subscribe(func(Event) {
		order = append(order, "first")
	})
	b.Subscribe(func(Event) {
		order = append(order, "remover")
		first.Unsubscribe()
		second.Unsubscribe()
	})
	second = b.Subscribe(func(Event) {
		order = append(order, "second")
	})
	third := 0
	b.Subscribe(func(Event) { third++ })

	b.PublishCreated(models.ImageRecord{ID: "x"})

	if len(order) != 2 || order[0] != "first" || order[1] != "remover" {
		t.Fatalf("order = %v, want [first remover]", order)
	}
	if third != 1 {
		t.Fatalf("later subscriber not reached: %d", third)
	}
	if b.Len() != 2 {
		t.Fatalf("Len = %d, want 2", b.Len())
	}
}

func TestUnsubscribe_SelfAndIdempotent(t *testing.T) {
	b := newTestBus()

	calls := 0
	var sub *Subscription
	sub = b.Subscribe(func(Event) {
		calls++
		sub.Unsubscribe()
		sub.Unsubscribe()
	})

	b.PublishCreated(models.ImageRecord{ID: "1"})
	b.PublishCreated(models.ImageRecord{ID: "2"})

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if sub.Active() {
		t.Fatalf("subscription still active")
	}
}

func TestPublish_SubscribersGetIndependentCopies(t *testing.T) {
	b := newTestBus()

	b.Subscribe(func(e Event) { e.Record.Detections[0].Label = "mutated" })
	var seen string
	b.Subscribe(func(e Event) { seen = e.Record.Detections[0].Label })

	rec := models.ImageRecord{ID: "1", Detections: []models.Detection{{Label: "FireAlarm"}}}
	b.PublishUpdated(rec)

	if seen != "FireAlarm" {
		t.Errorf("second subscriber saw %q", seen)
	}
	if rec.Detections[0].Label != "FireAlarm" {
		t.Errorf("publisher's record was mutated")
	}
}

func TestPublish_RecoversPanickingSubscriber(t *testing.T) {
	b := newTestBus()

	b.Subscribe(func(Event) { panic("boom") })
	calls := 0
	b.Subscribe(func(Event) { calls++ })

	b.PublishCreated(models.ImageRecord{ID: "1"})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestClose(t *testing.T) {
	b := newTestBus()
	calls := 0
	sub := b.Subscribe(func(Event) { calls++ })

	b.Close()
	b.PublishCreated(models.ImageRecord{ID: "1"})

	if calls != 0 {
		t.Fatalf("closed bus delivered %d events", calls)
	}
	if sub.Active() {
		t.Fatalf("subscription active after Close")
	}
	if late := b.Subscribe(func(Event) {}); late.Active() {
		t.Fatalf("subscribe after Close returned active subscription")
	}
}

func TestPublish_ConcurrentPublishers(t *testing.T) {
	b := newTestBus()

	var mu sync.Mutex
	seen := map[string]int{}
	b.Subscribe(func(e Event) {
		mu.Lock()
		seen[e.Record.ID]++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for _, id := range []string{"camera", "upload"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				b.PublishCreated(models.ImageRecord{ID: id})
			}
		}(id)
	}
	wg.Wait()

	if seen["camera"] != 50 || seen["upload"] != 50 {
		t.Fatalf("seen = %v", seen)
	}
}
