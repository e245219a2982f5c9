package stream

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type subscriber struct {
	token Token
	fn    Handler
}

// registry is the topic -> subscribers table shared between the caller
// threads (Subscribe/Unsubscribe) and the manager's dispatch goroutine.
type registry struct {
	mu      sync.RWMutex
	topics  map[string][]subscriber
	byToken map[Token]string
}

func newRegistry() *registry {
	return &registry{
		topics:  make(map[string][]subscriber),
		byToken: make(map[Token]string),
	}
}

func (r *registry) add(topic string, fn Handler) Token {
	token := Token(uuid.NewString())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics[topic] = append(r.topics[topic], subscriber{token: token, fn: fn})
	r.byToken[token] = topic
	return token
}

func (r *registry) remove(token Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	topic, ok := r.byToken[token]
	if !ok {
		return
	}
	delete(r.byToken, token)

	subs := r.topics[topic]
	for i := range subs {
		if subs[i].token == token {
			r.topics[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(r.topics[topic]) == 0 {
		delete(r.topics, topic)
	}
}

// snapshot returns the handlers to invoke for topic: topic subscribers
// in registration order, then wildcard subscribers in registration
// order. Unsubscribing removes future deliveries only; a dispatch
// working from an earlier snapshot may still complete.
func (r *registry) snapshot(topic string) []subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := make([]subscriber, 0, len(r.topics[topic])+len(r.topics[AllTopics]))
	subs = append(subs, r.topics[topic]...)
	if topic != AllTopics {
		subs = append(subs, r.topics[AllTopics]...)
	}
	return subs
}

// Subscribe registers fn for topic and returns a token for removal.
// Handlers for one topic are invoked in registration order. Use
// AllTopics to receive every event.
func (c *Client) Subscribe(topic string, fn Handler) Token {
	return c.subs.add(topic, fn)
}

// Unsubscribe removes the subscription identified by token. Unknown
// tokens are ignored.
func (c *Client) Unsubscribe(token Token) {
	c.subs.remove(token)
}

// dispatch delivers ev to every subscriber registered for its topic at
// this moment. A panicking handler is logged and skipped; handlers
// behind it still run.
func (c *Client) dispatch(ev Event) {
	for _, sub := range c.subs.snapshot(ev.Type) {
		c.call(sub, ev)
	}
}

func (c *Client) call(sub subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithFields(logrus.Fields{
				"topic": ev.Type,
				"panic": r,
			}).Error("subscriber panicked")
		}
	}()
	sub.fn(ev)
}
