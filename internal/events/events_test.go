package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutbox_SequenceAndSince(t *testing.T) {
	o := NewOutbox(0)
	for i := 0; i < 5; i++ {
		o.Append(Renewed("alice", int64(i), SourceDirect))
	}

	all := o.Since(0, 0)
	require.Len(t, all, 5)
	for i, e := range all {
		assert.Equal(t, uint64(i+1), e.Seq)
	}

	page := o.Since(2, 2)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(3), page[0].Seq)
	assert.Equal(t, uint64(4), page[1].Seq)

	assert.Empty(t, o.Since(5, 0))
	assert.Equal(t, uint64(5), o.LastSeq())
}

func TestOutbox_CapacityKeepsNewest(t *testing.T) {
	o := NewOutbox(3)
	for i := 0; i < 10; i++ {
		o.Append(Renewed("alice", int64(i), SourceDirect))
	}

	got := o.Since(0, 0)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(8), got[0].Seq)
	assert.Equal(t, uint64(10), got[2].Seq)
}

func TestOutbox_SubscribeReceivesLiveEvents(t *testing.T) {
	o := NewOutbox(0)
	ch, cancel := o.Subscribe(4)
	defer cancel()

	o.Append(Withdrawn("owner", decimal.NewFromInt(7)))

	select {
	case e := <-ch:
		assert.Equal(t, KindWithdrawn, e.Kind)
		assert.Equal(t, uint64(1), e.Seq)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	cancel()
	_, open := <-ch
	assert.False(t, open)
	cancel() // idempotent
}

func TestOutbox_SlowSubscriberDropped(t *testing.T) {
	o := NewOutbox(0)
	ch, cancel := o.Subscribe(1)
	defer cancel()

	o.Append(Renewed("a", 1, SourceDirect))
	o.Append(Renewed("a", 2, SourceDirect))

	<-ch
	_, open := <-ch
	assert.False(t, open, "subscriber that fell behind should be closed")
}

type failingSink struct{ calls int }

func (s *failingSink) Name() string { return "failing" }
func (s *failingSink) Publish(context.Context, Event) error {
	s.calls++
	return errors.New("unreachable")
}

type recordingSink struct{ got []Event }

func (s *recordingSink) Name() string { return "recording" }
func (s *recordingSink) Publish(_ context.Context, e Event) error {
	s.got = append(s.got, e)
	return nil
}

func TestDispatcher_StampsAndFansOut(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	outbox := NewOutbox(0)
	failing := &failingSink{}
	recording := &recordingSink{}
	d := NewDispatcher(outbox, clock, failing, recording)

	e := d.Emit(context.Background(), AutoRenewChanged("alice", false))

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, uint64(1), e.Seq)
	assert.Equal(t, clock.Now().UTC(), e.At)
	require.NotNil(t, e.AutoRenew)
	assert.False(t, *e.AutoRenew)

	assert.Equal(t, 1, failing.calls, "failing sink must not stop delivery")
	require.Len(t, recording.got, 1)
	assert.Equal(t, e, recording.got[0])
	assert.Len(t, outbox.Since(0, 0), 1)
}

func TestRedisPublisher_PublishesJSON(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	sub := client.Subscribe(ctx, DefaultRedisChannel)
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub := NewRedisPublisher(client, "")
	want := Renewed("alice", 2_592_000, SourceAutomation)
	want.Seq = 9
	require.NoError(t, pub.Publish(ctx, want))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, KindRenewed, got.Kind)
	assert.Equal(t, "alice", got.Account)
	assert.Equal(t, int64(2_592_000), got.ExpiresAt)
	assert.Equal(t, SourceAutomation, got.Source)
	assert.Equal(t, uint64(9), got.Seq)
}

func TestRedisPublisher_ErrorWhenServerGone(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	err := NewRedisPublisher(client, "x").Publish(context.Background(), Renewed("a", 1, SourceDirect))
	assert.Error(t, err)
}
