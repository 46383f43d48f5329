package fabric

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

func TestSendDeliversToRegisteredHandler(t *testing.T) {
	f := New(4, 16)
	defer f.Shutdown(context.Background())

	received := make(chan Message, 1)
	f.Register(models.ASN(2), func(from models.ASN, msg Message) {
		if from != models.ASN(1) {
			t.Errorf("from = %d, want 1", from)
		}
		received <- msg
	})

	f.Send(models.ASN(1), models.ASN(2), VoteRequest{Tx: models.Transaction{TxID: "t1"}})

	select {
	case msg := <-received:
		vr, ok := msg.(VoteRequest)
		if !ok || vr.Tx.TxID != "t1" {
			t.Fatalf("unexpected message: %#v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestSendToUnregisteredASIsDropped(t *testing.T) {
	f := New(2, 8)
	defer f.Shutdown(context.Background())

	f.Send(models.ASN(1), models.ASN(99), VoteRequest{})
	time.Sleep(50 * time.Millisecond)

	stats := f.Stats()
	if stats.Dropped != 1 {
		t.Fatalf("Dropped = %d, want 1", stats.Dropped)
	}
}

func TestPerPairOrderingPreserved(t *testing.T) {
	f := New(8, 256)
	defer f.Shutdown(context.Background())

	const n = 200
	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	f.Register(models.ASN(2), func(from models.ASN, msg Message) {
		vr := msg.(VoteRequest)
		mu.Lock()
		got = append(got, len(vr.Tx.TxID))
		if len(got) == n {
			close(done)
		}
		mu.Unlock()
	})

	for i := 0; i < n; i++ {
		txID := make([]byte, i+1)
		f.Send(models.ASN(1), models.ASN(2), VoteRequest{Tx: models.Transaction{TxID: string(txID)}})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not all messages delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i+1 {
			t.Fatalf("out of order at %d: got %d, want %d", i, v, i+1)
		}
	}
}

func TestBroadcastFansOutToSubset(t *testing.T) {
	f := New(4, 16)
	defer f.Shutdown(context.Background())

	var mu sync.Mutex
	hits := map[models.ASN]bool{}
	var wg sync.WaitGroup
	wg.Add(3)
	for _, as := range []models.ASN{10, 20, 30} {
		as := as
		f.Register(as, func(from models.ASN, msg Message) {
			mu.Lock()
			hits[as] = true
			mu.Unlock()
			wg.Done()
		})
	}

	f.Broadcast(models.ASN(1), []models.ASN{10, 20, 30}, AttackProposal{})

	waitCh := make(chan struct{})
	go func() { wg.Wait(); close(waitCh) }()
	select {
	case <-waitCh:
	case <-time.After(time.Second):
		t.Fatal("broadcast did not reach all subset members")
	}

	for _, as := range []models.ASN{10, 20, 30} {
		if !hits[as] {
			t.Errorf("AS %d did not receive broadcast", as)
		}
	}
}

func TestShutdownDrainsBeforeReturning(t *testing.T) {
	f := New(2, 32)

	var delivered int32Counter
	f.Register(models.ASN(5), func(from models.ASN, msg Message) {
		delivered.inc()
	})
	for i := 0; i < 10; i++ {
		f.Send(models.ASN(1), models.ASN(5), VoteRequest{})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if delivered.get() != 10 {
		t.Fatalf("delivered = %d, want 10", delivered.get())
	}
}

// int32Counter is a tiny mutex-guarded counter, avoiding an extra import
// for this one test.
type int32Counter struct {
	mu sync.Mutex
	n  int
}

func (c *int32Counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *int32Counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
