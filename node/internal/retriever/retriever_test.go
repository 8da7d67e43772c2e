package retriever

import (
	"errors"
	"sync"
	"testing"

	"github.com/freshwatch/freshwatch/node/internal/config"
	"github.com/freshwatch/freshwatch/node/internal/executor"
	"github.com/freshwatch/freshwatch/node/internal/fetch/fetchtest"
	"github.com/freshwatch/freshwatch/node/internal/registry"
	"github.com/freshwatch/freshwatch/pkg/types"
)

var testKey = types.ClearKey{RoutingKey: "abc,def,AQACAAE", DocName: "site"}

type collector struct {
	mu      sync.Mutex
	results []Result
}

func (c *collector) add(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *collector) editions() []types.Edition {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Edition, len(c.results))
	for i, r := range c.results {
		out[i] = r.Update.Edition
	}
	return out
}

func newRegistry(fs *fetchtest.Fake) *registry.Registry {
	return registry.New(config.TrackerConfig{MaxTemporaryFetchers: 4, TemporaryLookahead: 1, BackgroundLookahead: 1}, fs, executor.Inline{})
}

func TestRetriever_FetchesNewerEditions(t *testing.T) {
	fs := fetchtest.New()
	reg := newRegistry(fs)
	defer reg.Close()
	for _, ed := range []types.Edition{3, 5} {
		fs.Publish(testKey, ed)
	}

	c := &collector{}
	r, err := Subscribe(reg, fs, testKey.At(2), c.add, false)
	if err != nil {
		t.Fatal(err)
	}

	reg.UpdateSlot(testKey, 3)
	reg.UpdateKnownGood(testKey, 3) // same edition, already delivered
	reg.UpdateSlot(testKey, 5)

	got := c.editions()
	if len(got) != 2 || got[0] != 3 || got[1] != 5 {
		t.Fatalf("editions: got %v, want [3 5]", got)
	}
	if r.Last() != 5 {
		t.Errorf("Last: got %d, want 5", r.Last())
	}
	if n := len(fs.Fetches()); n != 2 {
		t.Errorf("content fetches: got %d, want 2", n)
	}
}

func TestRetriever_FailedFetchIsRetriedOnNextUpdate(t *testing.T) {
	fs := fetchtest.New()
	reg := newRegistry(fs)
	defer reg.Close()
	fs.Publish(testKey, 1)
	fs.BreakContent(testKey, 1)

	c := &collector{}
	if _, err := Subscribe(reg, fs, testKey.At(types.Unknown), c.add, false); err != nil {
		t.Fatal(err)
	}
	reg.UpdateSlot(testKey, 1)
	if len(c.editions()) != 0 {
		t.Fatal("delivered a failed fetch")
	}

	fs.Publish(testKey, 2)
	reg.UpdateKnownGood(testKey, 2)
	if got := c.editions(); len(got) != 1 || got[0] != 2 {
		t.Errorf("editions: got %v, want [2]", got)
	}
}

func TestRetriever_UnsubscribeStopsDelivery(t *testing.T) {
	fs := fetchtest.New()
	reg := newRegistry(fs)
	defer reg.Close()
	fs.Publish(testKey, 1)

	c := &collector{}
	r, err := Subscribe(reg, fs, testKey.At(0), c.add, false)
	if err != nil {
		t.Fatal(err)
	}
	r.Unsubscribe()
	reg.UpdateSlot(testKey, 1)
	if len(c.editions()) != 0 {
		t.Error("delivered after unsubscribe")
	}
	if n := reg.Freshness(testKey).Subscribers; n != 0 {
		t.Errorf("subscribers: got %d, want 0", n)
	}
}

func TestRetriever_SubscribeErrorIsWrapped(t *testing.T) {
	fs := fetchtest.New()
	reg := newRegistry(fs)
	reg.Close()
	_, err := Subscribe(reg, fs, testKey.At(0), func(Result) {}, false)
	if !errors.Is(err, registry.ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
}
