package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHubPublishInSubscriptionOrder(t *testing.T) {
	hub := NewHub()
	var got []string
	hub.Subscribe(TopicSessionExpired, func(_ context.Context, evt Event) { got = append(got, "a:"+evt.Topic) })
	hub.Subscribe(TopicSessionExpired, func(_ context.Context, evt Event) { got = append(got, "b:"+evt.Topic) })
	hub.Subscribe(TopicViewUpdated, func(context.Context, Event) { got = append(got, "other") })

	hub.Publish(context.Background(), TopicSessionExpired, nil, nil)
	require.Equal(t, []string{"a:session.expired", "b:session.expired"}, got)
}

func TestHubUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub()
	calls := 0
	off := hub.Subscribe(TopicChannelState, func(context.Context, Event) { calls++ })
	hub.Publish(context.Background(), TopicChannelState, "connected", nil)
	off()
	off()
	hub.Publish(context.Background(), TopicChannelState, "closed", nil)
	require.Equal(t, 1, calls)
}

func TestHubHandlerMayUnsubscribeDuringPublish(t *testing.T) {
	hub := NewHub()
	var off func()
	calls := 0
	off = hub.Subscribe(TopicSessionExpired, func(context.Context, Event) {
		calls++
		off()
	})
	hub.Publish(context.Background(), TopicSessionExpired, nil, nil)
	hub.Publish(context.Background(), TopicSessionExpired, nil, nil)
	require.Equal(t, 1, calls)
}
