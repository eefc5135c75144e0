package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBus_PublishOrderAndUnsubscribe(t *testing.T) {
	t.Parallel()
	b := NewBus()
	ctx := context.Background()

	var got []string
	un1 := b.Subscribe(LoansChanged, func(_ context.Context, ev Event) { got = append(got, "a:"+ev.Payload.(string)) })
	b.Subscribe(LoansChanged, func(_ context.Context, ev Event) { got = append(got, "b:"+ev.Payload.(string)) })
	b.Subscribe(ProfileChanged, func(context.Context, Event) { got = append(got, "profile") })

	b.Publish(ctx, Event{Topic: LoansChanged, Payload: "1"})
	require.Equal(t, []string{"a:1", "b:1"}, got)

	un1()
	un1()
	got = nil
	b.Publish(ctx, Event{Topic: LoansChanged, Payload: "2"})
	require.Equal(t, []string{"b:2"}, got)
}

func TestBus_SubscribeDuringPublish(t *testing.T) {
	t.Parallel()
	b := NewBus()
	calls := 0
	b.Subscribe(SessionChanged, func(ctx context.Context, ev Event) {
		calls++
		b.Subscribe(SessionChanged, func(context.Context, Event) { calls += 10 })
	})
	b.Publish(context.Background(), Event{Topic: SessionChanged})
	require.Equal(t, 1, calls, "handlers added mid-publish wait for the next event")
}

func TestTopic_String(t *testing.T) {
	t.Parallel()
	require.Equal(t, "loans-changed", LoansChanged.String())
	require.Equal(t, "unknown", Topic(99).String())
}
