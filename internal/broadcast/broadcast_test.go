package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueReplaysCurrentOnSubscribe(t *testing.T) {
	v := NewValue("initial")
	v.Publish("second")

	sub := v.Subscribe()
	defer sub.Close()

	assert.Equal(t, "second", <-sub.C())
	assert.Equal(t, "second", v.Load())
}

func TestValueNotifiesOnUnchangedPublish(t *testing.T) {
	v := NewValue(1)
	sub := v.Subscribe()
	defer sub.Close()
	<-sub.C()

	v.Publish(1)

	select {
	case got := <-sub.C():
		assert.Equal(t, 1, got)
	default:
		t.Fatal("expected a notification for an unchanged value")
	}
}

func TestValueConflatesForSlowSubscriber(t *testing.T) {
	v := NewValue(0)
	sub := v.Subscribe()
	defer sub.Close()

	v.Publish(1)
	v.Publish(2)
	v.Publish(3)

	assert.Equal(t, 3, <-sub.C())
	select {
	case extra := <-sub.C():
		t.Fatalf("unexpected extra value %d", extra)
	default:
	}
}

func TestValueCloseUnsubscribes(t *testing.T) {
	v := NewValue(0)
	sub := v.Subscribe()
	require.Equal(t, 1, v.Subscribers())

	sub.Close()
	sub.Close()

	assert.Equal(t, 0, v.Subscribers())
	v.Publish(5)
	_, ok := <-sub.C()
	assert.False(t, ok)
}

func TestFeedCloseDiscardsBufferedEvents(t *testing.T) {
	f := NewFeed[int](4)
	sub := f.Subscribe()
	f.Publish(1)
	f.Publish(2)

	sub.Close()

	var got []int
	for ev := range sub.C() {
		got = append(got, ev)
	}
	assert.Empty(t, got)
}

func TestFeedDeliversWithoutReplay(t *testing.T) {
	f := NewFeed[string](2)
	f.Publish("before")

	sub := f.Subscribe()
	defer sub.Close()

	f.Publish("a")
	f.Publish("b")
	f.Publish("c")

	assert.Equal(t, "a", <-sub.C())
	assert.Equal(t, "b", <-sub.C())
	assert.Equal(t, uint64(1), f.Dropped())
}
