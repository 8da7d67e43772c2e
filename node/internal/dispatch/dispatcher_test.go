package dispatch

import (
	"sync"
	"testing"

	"github.com/freshwatch/freshwatch/node/internal/executor"
	"github.com/freshwatch/freshwatch/pkg/types"
)

// recorder collects delivered editions in arrival order.
type recorder struct {
	mu  sync.Mutex
	got []types.Edition
}

func (r *recorder) OnFoundEdition(u types.Update) {
	r.mu.Lock()
	r.got = append(r.got, u.Edition)
	r.mu.Unlock()
}

func (r *recorder) editions() []types.Edition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Edition(nil), r.got...)
}

type panicker struct{ calls int }

func (p *panicker) OnFoundEdition(types.Update) {
	p.calls++
	panic("subscriber bug")
}

var key = types.ClearKey{RoutingKey: "abc,def,AQACAAE", DocName: "site"}

func update(ed types.Edition) types.Update {
	return types.Update{Key: key.At(ed), Edition: ed}
}

func TestDispatcher_PerSubscriberOrder(t *testing.T) {
	exec := executor.NewGo()
	d := NewDispatcher(exec)
	subs := []*recorder{{}, {}, {}}

	// Simulate the registry: commit under a lock, start drains after it.
	var registryMu sync.Mutex
	for ed := types.Edition(0); ed < 500; ed++ {
		registryMu.Lock()
		var start []types.Subscriber
		for _, s := range subs {
			if d.Enqueue(s, update(ed)) {
				start = append(start, s)
			}
		}
		registryMu.Unlock()
		d.StartAll(start)
	}
	d.Wait()

	for i, s := range subs {
		got := s.editions()
		if len(got) != 500 {
			t.Fatalf("subscriber %d: got %d updates, want 500", i, len(got))
		}
		for j, ed := range got {
			if ed != types.Edition(j) {
				t.Fatalf("subscriber %d: update %d is edition %d", i, j, ed)
			}
		}
	}
	if n := d.Delivered(); n != 1500 {
		t.Errorf("Delivered: got %d, want 1500", n)
	}
	if n := d.Backlog(); n != 0 {
		t.Errorf("Backlog: got %d, want 0", n)
	}
}

func TestDispatcher_EnqueueWhileDraining(t *testing.T) {
	d := NewDispatcher(executor.NewGo())
	r := &recorder{}

	if !d.Enqueue(r, update(1)) {
		t.Fatal("first Enqueue should request Start")
	}
	if d.Enqueue(r, update(2)) {
		t.Error("second Enqueue before drain should not request Start")
	}
	d.Start(r)
	d.Wait()

	got := r.editions()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("editions: got %v, want [1 2]", got)
	}
	// Mailbox is gone once drained, so the next Enqueue starts a new drain.
	if !d.Enqueue(r, update(3)) {
		t.Error("Enqueue after drain should request Start")
	}
	d.Start(r)
	d.Wait()
}

func TestDispatcher_PanicDoesNotStopMailbox(t *testing.T) {
	d := NewDispatcher(executor.Inline{})
	p := &panicker{}
	start := d.EnqueueAll([]types.Subscriber{p}, update(1))
	d.Enqueue(p, update(2))
	d.StartAll(start)
	d.Wait()

	if p.calls != 2 {
		t.Errorf("calls: got %d, want 2", p.calls)
	}
	if d.Delivered() != 0 {
		t.Errorf("Delivered: got %d, want 0 (both panicked)", d.Delivered())
	}
}
