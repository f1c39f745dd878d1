package collab

import "log/slog"

// Poster posts work onto the dispatch loop. *engine.Loop implements it.
type Poster interface {
	Post(name string, fn func()) bool
}

// Handler consumes notifications on the loop.
type Handler func(Notification)

// Bus delivers notifications to subscribers on the dispatch loop.
//
// Thread-safety model:
//   - Publish(): safe from any goroutine (it only posts)
//   - Subscribe(), the returned cancel func: loop only
type Bus struct {
	loop   Poster
	logger *slog.Logger
	subs   []*subscription
}

type subscription struct {
	h      Handler
	active bool
}

// NewBus creates a bus bound to loop.
func NewBus(loop Poster, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{loop: loop, logger: logger}
}

// Subscribe registers h and returns a function that removes it. Removal
// takes effect immediately, including for a delivery in progress.
func (b *Bus) Subscribe(h Handler) func() {
	s := &subscription{h: h, active: true}
	b.subs = append(b.subs, s)
	return func() {
		if !s.active {
			return
		}
		s.active = false
		for i, other := range b.subs {
			if other == s {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				break
			}
		}
	}
}

// Publish posts n for delivery to every subscriber registered at
// delivery time, in subscription order.
func (b *Bus) Publish(n Notification) {
	b.loop.Post("notify:"+n.Kind(), func() {
		b.logger.Debug("notification", "kind", n.Kind())
		subs := append([]*subscription(nil), b.subs...)
		for _, s := range subs {
			if s.active {
				s.h(n)
			}
		}
	})
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	return len(b.subs)
}
