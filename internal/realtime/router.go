package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBuffer is the outbound queue depth of a connection.
const DefaultBuffer = 64

var ErrConnClosed = errors.New("connection closed")

// Conn is the router side of one subscriber.  Events are queued on a
// bounded buffer; a subscriber that lets it fill up is disconnected.
type Conn struct {
	ID        string
	out       chan Event
	done      chan struct{}
	closeOnce sync.Once
}

func NewConn(buffer int) *Conn {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Conn{ID: uuid.NewString(), out: make(chan Event, buffer), done: make(chan struct{})}
}

// Events is the ordered outbound queue.  It is never closed; watch Done.
func (c *Conn) Events() <-chan Event { return c.out }

// Done is closed once the connection has been removed from the router.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) close() { c.closeOnce.Do(func() { close(c.done) }) }

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// offer enqueues ev without blocking and reports whether it fit.
func (c *Conn) offer(ev Event) bool {
	select {
	case c.out <- ev:
		return true
	default:
		return false
	}
}

// Bridge forwards locally published events to other replicas.
type Bridge interface {
	Forward(ctx context.Context, key ChannelKey, ev Event) error
}

type Router struct {
	mu     sync.Mutex
	subs   map[ChannelKey]map[*Conn]struct{}
	conns  map[*Conn]map[ChannelKey]struct{}
	bridge Bridge
	log    *zap.Logger
	now    func() time.Time
}

func NewRouter(log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		subs:  make(map[ChannelKey]map[*Conn]struct{}),
		conns: make(map[*Conn]map[ChannelKey]struct{}),
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetBridge installs the cross-replica bridge.  Call before serving.
func (r *Router) SetBridge(b Bridge) { r.bridge = b }

// Subscribe adds c to the channel.  Subscribing twice is a no-op.
func (r *Router) Subscribe(c *Conn, key ChannelKey) error {
	if !key.Valid() {
		return ErrBadChannel
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.closed() {
		return ErrConnClosed
	}
	set, ok := r.subs[key]
	if !ok {
		set = make(map[*Conn]struct{})
		r.subs[key] = set
	}
	set[c] = struct{}{}
	keys, ok := r.conns[c]
	if !ok {
		keys = make(map[ChannelKey]struct{})
		r.conns[c] = keys
	}
	keys[key] = struct{}{}
	return nil
}

func (r *Router) Unsubscribe(c *Conn, key ChannelKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(c, key)
}

func (r *Router) unsubscribeLocked(c *Conn, key ChannelKey) {
	if set, ok := r.subs[key]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.subs, key)
		}
	}
	if keys, ok := r.conns[c]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(r.conns, c)
		}
	}
}

// Remove drops every subscription of c and closes it.
func (r *Router) Remove(c *Conn) {
	r.mu.Lock()
	r.removeLocked(c)
	r.mu.Unlock()
}

func (r *Router) removeLocked(c *Conn) {
	for key := range r.conns[c] {
		if set, ok := r.subs[key]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(r.subs, key)
			}
		}
	}
	delete(r.conns, c)
	c.close()
}

// Publish delivers ev to the local subscribers of key and then forwards it
// through the bridge, if any.  Bridge failures are logged and swallowed.
func (r *Router) Publish(ctx context.Context, key ChannelKey, ev Event) {
	ev.Channel = key.String()
	if ev.At.IsZero() {
		ev.At = r.now()
	}
	r.Deliver(key, ev)
	if r.bridge != nil {
		if err := r.bridge.Forward(ctx, key, ev); err != nil {
			r.log.Warn("realtime bridge forward failed", zap.String("channel", ev.Channel), zap.Error(err))
		}
	}
}

// Deliver fans ev out to local subscribers only.
func (r *Router) Deliver(key ChannelKey, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.subs[key] {
		if !c.offer(ev) {
			r.log.Info("dropping slow subscriber", zap.String("conn", c.ID), zap.String("channel", ev.Channel))
			r.removeLocked(c)
		}
	}
}

// Subscribers returns the number of connections on key.
func (r *Router) Subscribers(key ChannelKey) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[key])
}

// Connections returns the number of connections holding any subscription.
func (r *Router) Connections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
