package bus

import (
	"context"
	"sync"
	"testing"

	"matchbook/internal/schema"
)

func event(seq uint64, payload []byte) Event {
	return Event{
		Header:  schema.NewHeader(schema.EventTrade, 1, seq, 0, 0),
		Payload: payload,
	}
}

func TestQueuePublishAndDrain(t *testing.T) {
	q := NewQueue(4)
	for seq := uint64(1); seq <= 4; seq++ {
		if err := q.TryPublish(event(seq, nil)); err != nil {
			t.Fatalf("publish %d: %v", seq, err)
		}
	}
	if err := q.TryPublish(event(5, nil)); err != ErrQueueFull {
		t.Fatalf("full queue should reject, got %v", err)
	}

	q.Close()
	if err := q.TryPublish(event(6, nil)); err != ErrQueueClosed {
		t.Fatalf("closed queue should reject, got %v", err)
	}

	var seqs []uint64
	q.Run(context.Background(), func(e Event) {
		seqs = append(seqs, e.Header.Seq)
	})
	if len(seqs) != 4 {
		t.Fatalf("want 4 drained events, got %d", len(seqs))
	}
	for i, seq := range seqs {
		if seq != uint64(i+1) {
			t.Fatalf("events out of order: %v", seqs)
		}
	}
}

// Closing while publishers are mid-flight must never panic: publishers see
// ErrQueueClosed once the queue shuts, and accepted events stay drainable.
func TestCloseRacesWithPublishers(t *testing.T) {
	q := NewQueue(4)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker uint64) {
			defer wg.Done()
			<-start
			for seq := uint64(0); seq < 500; seq++ {
				err := q.TryPublish(event(worker*1000+seq, nil))
				if err == ErrQueueClosed {
					return
				}
			}
		}(uint64(i))
	}

	drained := make(chan int)
	go func() {
		n := 0
		q.Run(context.Background(), func(Event) { n++ })
		drained <- n
	}()

	close(start)
	q.Close()
	wg.Wait()
	<-drained

	if err := q.TryPublish(event(1, nil)); err != ErrQueueClosed {
		t.Fatalf("closed queue should reject, got %v", err)
	}
	q.Close()
}

func TestFanoutCopiesPayload(t *testing.T) {
	a := NewQueue(1)
	b := NewQueue(1)
	f := NewFanout(a, b)

	payload := []byte("shared")
	if accepted := f.Publish(event(1, payload)); accepted != 2 {
		t.Fatalf("both queues should accept, got %d", accepted)
	}
	payload[0] = 'X'

	a.Close()
	b.Close()
	check := func(q *Queue) {
		q.Run(context.Background(), func(e Event) {
			if string(e.Payload) != "shared" {
				t.Fatalf("subscriber saw publisher mutation: %q", e.Payload)
			}
		})
	}
	check(a)
	check(b)
}

func TestFanoutCountsDrops(t *testing.T) {
	full := NewQueue(1)
	if err := full.TryPublish(event(1, nil)); err != nil {
		t.Fatalf("prefill: %v", err)
	}
	open := NewQueue(1)
	f := NewFanout(full, open)

	if accepted := f.Publish(event(2, nil)); accepted != 1 {
		t.Fatalf("only the open queue should accept, got %d", accepted)
	}
	if f.Drops() != 1 {
		t.Fatalf("want 1 drop, got %d", f.Drops())
	}
	if f.Len() != 2 {
		t.Fatalf("fanout should report 2 queues, got %d", f.Len())
	}
}
