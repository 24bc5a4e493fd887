package events

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ordersdomain "github.com/Apurer/tableside/internal/domains/orders/domain"
	tablesdomain "github.com/Apurer/tableside/internal/domains/tables/domain"
)

func cached(id string) tablesdomain.CachedTable {
	return tablesdomain.CachedTable{Table: tablesdomain.Table{ID: id, Zone: "Terraza", State: tablesdomain.StateFree, Capacity: 4}}
}

func TestNotifier_DeliversInSubscriptionOrder(t *testing.T) {
	n := New()
	var got []string
	n.OnTableChanged(func(tablesdomain.CachedTable) { got = append(got, "first") })
	n.OnTableChanged(func(tablesdomain.CachedTable) { got = append(got, "second") })

	n.PublishTableChanged(cached("T01"))
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestNotifier_PanickingSubscriberIsIsolated(t *testing.T) {
	var logs bytes.Buffer
	n := New(WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	delivered := 0
	n.OnTableListChanged(func([]tablesdomain.CachedTable) { panic("boom") })
	n.OnTableListChanged(func(list []tablesdomain.CachedTable) { delivered += len(list) })

	require.NotPanics(t, func() {
		n.PublishTableListChanged([]tablesdomain.CachedTable{cached("T01"), cached("T02")})
	})
	assert.Equal(t, 2, delivered)
	assert.Contains(t, logs.String(), "event subscriber panicked")
	assert.Contains(t, logs.String(), string(ChannelTableListChanged))
}

func TestNotifier_UnsubscribeStopsDelivery(t *testing.T) {
	n := New()
	calls := 0
	sub := n.OnTableChanged(func(tablesdomain.CachedTable) { calls++ })
	require.Equal(t, 1, n.SubscriberCount(ChannelTableChanged))

	n.PublishTableChanged(cached("T01"))
	sub.Unsubscribe()
	sub.Unsubscribe()
	n.PublishTableChanged(cached("T01"))

	assert.Equal(t, 1, calls)
	assert.Zero(t, n.SubscriberCount(ChannelTableChanged))
}

func TestNotifier_UnsubscribeFromHandler(t *testing.T) {
	n := New()
	calls := 0
	var sub *Subscription
	sub = n.OnTableChanged(func(tablesdomain.CachedTable) {
		calls++
		sub.Unsubscribe()
	})
	n.PublishTableChanged(cached("T01"))
	n.PublishTableChanged(cached("T01"))
	assert.Equal(t, 1, calls)
}

func TestNotifier_OrderSubscribersGetCopies(t *testing.T) {
	n := New()
	order := &ordersdomain.Order{ID: 1, TableID: "T01", State: ordersdomain.StateOpen,
		Lines: []ordersdomain.Line{{ProductID: 5, Quantity: 1}}}
	n.OnOrderChanged(func(o *ordersdomain.Order) { o.Lines[0].Quantity = 99 })
	var seen int
	n.OnOrderChanged(func(o *ordersdomain.Order) { seen = o.Lines[0].Quantity })

	n.PublishOrderChanged(order)
	n.PublishOrderChanged(nil)
	assert.Equal(t, 1, seen)
	assert.Equal(t, 1, order.Lines[0].Quantity)
}

func TestNotifier_ChannelsAreIndependent(t *testing.T) {
	n := New()
	n.OnOrderChanged(func(*ordersdomain.Order) {})
	assert.Equal(t, 1, n.SubscriberCount(ChannelOrderChanged))
	assert.Zero(t, n.SubscriberCount(ChannelTableChanged))
	assert.Zero(t, n.SubscriberCount(Channel("unknown")))
	assert.Len(t, Channels(), 3)
}

func TestNotifier_ConcurrentPublishAndSubscribe(t *testing.T) {
	n := New()
	var mu sync.Mutex
	received := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := n.OnTableChanged(func(tablesdomain.CachedTable) {
				mu.Lock()
				received++
				mu.Unlock()
			})
			defer sub.Unsubscribe()
		}()
		go func() {
			defer wg.Done()
			n.PublishTableChanged(cached("T01"))
		}()
	}
	wg.Wait()
	assert.Zero(t, n.SubscriberCount(ChannelTableChanged))
	mu.Lock()
	assert.LessOrEqual(t, received, 100)
	mu.Unlock()
}

func TestRegistry_IsolatesNotifiersByName(t *testing.T) {
	reg := NewRegistry()
	bar := reg.Get("bar")
	require.Same(t, bar, reg.Get("bar"))

	terrace := reg.Get("terrace")
	heard := 0
	bar.OnTableChanged(func(tablesdomain.CachedTable) { heard++ })
	terrace.PublishTableChanged(cached("T01"))
	assert.Zero(t, heard)
	assert.Equal(t, []string{"bar", "terrace"}, reg.Names())

	reg.Drop("bar")
	assert.NotSame(t, bar, reg.Get("bar"))
	assert.Zero(t, reg.Get("bar").SubscriberCount(ChannelTableChanged))
}

func TestContext_CarriesNotifier(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	n := New()
	got, ok := FromContext(WithNotifier(context.Background(), n))
	require.True(t, ok)
	assert.Same(t, n, got)

	_, ok = FromContext(WithNotifier(context.Background(), nil))
	assert.False(t, ok)
}
