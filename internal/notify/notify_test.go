package notify_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/mutker/bmcfanctl/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	b := notify.NewBroker()
	a := b.Subscribe("alice")
	c := b.Subscribe("carol")

	b.Publish(&notify.Event{Kind: notify.KindFanDrift, FanID: "FAN1", OldRPM: 2000, NewRPM: 2300})

	for _, sub := range []notify.Subscriber{a, c} {
		select {
		case ev := <-sub:
			assert.Equal(t, "FAN1", ev.FanID)
			assert.False(t, ev.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	assert.Equal(t, []string{"alice", "carol"}, b.Subscribers())
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	b := notify.NewBroker()
	b.Subscribe("slow")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			b.Publish(&notify.Event{Kind: notify.KindPolicy, Message: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := notify.NewBroker()
	sub := b.Subscribe("bob")
	b.Unsubscribe("bob")

	_, ok := <-sub
	assert.False(t, ok)
	assert.Empty(t, b.Subscribers())

	b.Unsubscribe("bob")
}

func TestRecent(t *testing.T) {
	b := notify.NewBroker()
	for i := 0; i < 150; i++ {
		b.Publish(&notify.Event{Kind: notify.KindFanDrift, NewRPM: i})
	}

	all := b.Recent(0)
	require.Len(t, all, 100)
	assert.Equal(t, 50, all[0].NewRPM)

	last := b.Recent(2)
	require.Len(t, last, 2)
	assert.Equal(t, 148, last[0].NewRPM)
	assert.Equal(t, 149, last[1].NewRPM)
}

func TestConsume(t *testing.T) {
	b := notify.NewBroker()
	sub := b.Subscribe("log")
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan *notify.Event, 1)
	done := make(chan struct{})
	go func() {
		notify.Consume(ctx, sub, func(ev *notify.Event) { got <- ev })
		close(done)
	}()

	b.Publish(&notify.Event{Kind: notify.KindReadiness, Message: "ready"})
	assert.Equal(t, "ready", (<-got).String())

	cancel()
	<-done
}

func TestEventString(t *testing.T) {
	ev := &notify.Event{Kind: notify.KindFanDrift, FanID: "FAN1", OldRPM: 2000, NewRPM: 2300, ManualControl: true}
	assert.Equal(t, "FAN1: 2000 -> 2300 RPM (manual control: true)", ev.String())
}
