package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return NewClient(DefaultConfig("ws://unused"))
}

func event(topic, data string) Event {
	return Event{Type: topic, Data: json.RawMessage(data)}
}

func TestDispatchRegistrationOrder(t *testing.T) {
	c := newTestClient()

	var order []string
	c.Subscribe(TopicTradeUpdate, func(Event) { order = append(order, "first") })
	c.Subscribe(TopicTradeUpdate, func(Event) { order = append(order, "second") })
	c.Subscribe(TopicTradeUpdate, func(Event) { order = append(order, "third") })

	c.dispatch(event(TopicTradeUpdate, `{}`))
	assert.Equal(t, []string{"first", "second", "third"}, order)

	c.dispatch(event(TopicTradeUpdate, `{}`))
	assert.Equal(t, []string{"first", "second", "third", "first", "second", "third"}, order)
}

func TestUnsubscribeRemovesOnlyThatCallback(t *testing.T) {
	c := newTestClient()

	var a, b int
	tokenA := c.Subscribe(TopicPriceUpdate, func(Event) { a++ })
	c.Subscribe(TopicPriceUpdate, func(Event) { b++ })

	c.dispatch(event(TopicPriceUpdate, `{}`))
	c.Unsubscribe(tokenA)
	c.dispatch(event(TopicPriceUpdate, `{}`))

	assert.Equal(t, 1, a, "unsubscribed callback must not fire again")
	assert.Equal(t, 2, b)
}

func TestUnsubscribeUnknownTokenIsNoop(t *testing.T) {
	c := newTestClient()
	c.Unsubscribe(Token("no-such-token"))
}

func TestWildcardReceivesEverything(t *testing.T) {
	c := newTestClient()

	var topics []string
	c.Subscribe(AllTopics, func(ev Event) { topics = append(topics, ev.Type) })

	c.dispatch(event(TopicTradeUpdate, `{}`))
	c.dispatch(event(TopicPriceUpdate, `{}`))
	c.dispatch(event(TopicAISignal, `{}`))
	c.dispatch(event("some_future_topic", `{}`))

	assert.Equal(t, []string{
		TopicTradeUpdate, TopicPriceUpdate, TopicAISignal, "some_future_topic",
	}, topics)
}

func TestTopicSubscribersRunBeforeWildcard(t *testing.T) {
	c := newTestClient()

	var order []string
	c.Subscribe(AllTopics, func(Event) { order = append(order, "wildcard") })
	c.Subscribe(TopicTradeUpdate, func(Event) { order = append(order, "topic") })

	c.dispatch(event(TopicTradeUpdate, `{}`))
	assert.Equal(t, []string{"topic", "wildcard"}, order)
}

func TestPanickingSubscriberDoesNotStopOthers(t *testing.T) {
	c := newTestClient()

	var delivered int
	c.Subscribe(TopicTradeUpdate, func(Event) { panic("subscriber bug") })
	c.Subscribe(TopicTradeUpdate, func(Event) { delivered++ })

	require.NotPanics(t, func() {
		c.dispatch(event(TopicTradeUpdate, `{}`))
	})
	assert.Equal(t, 1, delivered, "later subscribers still receive the event")
}

func TestDispatchWithNoSubscribers(t *testing.T) {
	c := newTestClient()
	c.dispatch(event(TopicTradeUpdate, `{}`)) // must not panic or block
}

func TestSubscribeReturnsUniqueTokens(t *testing.T) {
	c := newTestClient()
	seen := make(map[Token]bool)
	for i := 0; i < 100; i++ {
		token := c.Subscribe(TopicTradeUpdate, func(Event) {})
		require.False(t, seen[token], "token %q issued twice", token)
		seen[token] = true
	}
}
