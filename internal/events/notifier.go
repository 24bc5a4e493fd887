// Package events is the in-process publish/subscribe hub that keeps observers of tables
// and orders in sync. Delivery is synchronous and best effort: a panicking subscriber is
// logged and skipped, and never aborts the publisher or the remaining subscribers.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	ordersdomain "github.com/Apurer/tableside/internal/domains/orders/domain"
	tablesdomain "github.com/Apurer/tableside/internal/domains/tables/domain"
)

// Channel identifies one of the notifier's broadcast streams.
type Channel string

const (
	ChannelTableChanged     Channel = "table_changed"
	ChannelTableListChanged Channel = "table_list_changed"
	ChannelOrderChanged     Channel = "order_changed"
)

// Channels lists every channel in a stable order.
func Channels() []Channel {
	return []Channel{ChannelTableChanged, ChannelTableListChanged, ChannelOrderChanged}
}

// Publisher is the narrow surface services depend on.
type Publisher interface {
	PublishTableChanged(table tablesdomain.CachedTable)
	PublishTableListChanged(tables []tablesdomain.CachedTable)
	PublishOrderChanged(order *ordersdomain.Order)
}

// Notifier fans events out to subscribers. The zero value is not usable; call New.
type Notifier struct {
	logger    *slog.Logger
	tables    *channel[tablesdomain.CachedTable]
	tableList *channel[[]tablesdomain.CachedTable]
	orders    *channel[*ordersdomain.Order]
}

var _ Publisher = (*Notifier)(nil)

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the logger used to report subscriber panics.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// New constructs an empty notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	n.tables = newChannel[tablesdomain.CachedTable](ChannelTableChanged, n.logger)
	n.tableList = newChannel[[]tablesdomain.CachedTable](ChannelTableListChanged, n.logger)
	n.orders = newChannel[*ordersdomain.Order](ChannelOrderChanged, n.logger)
	return n
}

// OnTableChanged registers fn for single-table updates.
func (n *Notifier) OnTableChanged(fn func(tablesdomain.CachedTable)) *Subscription {
	return n.tables.subscribe(fn)
}

// OnTableListChanged registers fn for full-list refreshes.
func (n *Notifier) OnTableListChanged(fn func([]tablesdomain.CachedTable)) *Subscription {
	return n.tableList.subscribe(fn)
}

// OnOrderChanged registers fn for order updates. Subscribers receive their own copy.
func (n *Notifier) OnOrderChanged(fn func(*ordersdomain.Order)) *Subscription {
	return n.orders.subscribe(func(o *ordersdomain.Order) { fn(o.Clone()) })
}

func (n *Notifier) PublishTableChanged(table tablesdomain.CachedTable) {
	n.tables.publish(table)
}

func (n *Notifier) PublishTableListChanged(tables []tablesdomain.CachedTable) {
	n.tableList.publish(tables)
}

func (n *Notifier) PublishOrderChanged(order *ordersdomain.Order) {
	if order == nil {
		return
	}
	n.orders.publish(order.Clone())
}

// SubscriberCount reports how many subscribers are registered on ch.
func (n *Notifier) SubscriberCount(ch Channel) int {
	switch ch {
	case ChannelTableChanged:
		return n.tables.len()
	case ChannelTableListChanged:
		return n.tableList.len()
	case ChannelOrderChanged:
		return n.orders.len()
	default:
		return 0
	}
}

// Subscription is the handle returned by every On* call.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe removes the subscriber. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

type channel[T any] struct {
	name   Channel
	logger *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber[T]
}

func newChannel[T any](name Channel, logger *slog.Logger) *channel[T] {
	return &channel[T]{name: name, logger: logger}
}

func (c *channel[T]) subscribe(fn func(T)) *Subscription {
	if fn == nil {
		return &Subscription{cancel: func() {}}
	}
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscriber[T]{id: id, fn: fn})
	c.mu.Unlock()
	return &Subscription{cancel: func() { c.remove(id) }}
}

func (c *channel[T]) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, sub := range c.subs {
		if sub.id == id {
			c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
			return
		}
	}
}

func (c *channel[T]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// publish delivers to a snapshot of the subscribers so handlers may subscribe or
// unsubscribe without deadlocking.
func (c *channel[T]) publish(payload T) {
	c.mu.RLock()
	snapshot := make([]subscriber[T], len(c.subs))
	copy(snapshot, c.subs)
	c.mu.RUnlock()

	for _, sub := range snapshot {
		c.deliver(sub, payload)
	}
}

func (c *channel[T]) deliver(sub subscriber[T], payload T) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.LogAttrs(context.Background(), slog.LevelError, "event subscriber panicked",
				slog.String("channel", string(c.name)),
				slog.Uint64("subscriber", sub.id),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()
	sub.fn(payload)
}
