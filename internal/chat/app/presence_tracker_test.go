package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceTracker_EnterSyncsAndTracks(t *testing.T) {
	channel := newFakePresenceChannel(aliceID)
	tracker := NewPresenceTracker(channel, selfID, 0, testTTL)

	var syncs [][]string
	tracker.OnChange(func(online []string) { syncs = append(syncs, online) })

	require.NoError(t, tracker.Enter(context.Background()))

	assert.Equal(t, []string{"subscribe", "track:" + selfID}, channel.callLog())
	assert.Equal(t, []string{aliceID, selfID}, tracker.OnlineSet())
	assert.True(t, tracker.IsOnline(aliceID))
	assert.False(t, tracker.IsOnline(bobID))
	require.Len(t, syncs, 2)
	assert.Equal(t, []string{aliceID}, syncs[0])

	require.NoError(t, tracker.Leave(context.Background()))
}

func TestPresenceTracker_OnlineSetMirrorsChannel(t *testing.T) {
	channel := newFakePresenceChannel(aliceID)
	tracker := NewPresenceTracker(channel, selfID, 0, testTTL)
	require.NoError(t, tracker.Enter(context.Background()))

	channel.join(bobID)
	assert.True(t, tracker.IsOnline(bobID))

	// a sync replaces the set, it never accumulates
	require.NoError(t, channel.Untrack(context.Background(), aliceID))
	assert.Equal(t, []string{bobID, selfID}, tracker.OnlineSet())

	require.NoError(t, tracker.Leave(context.Background()))
}

func TestPresenceTracker_LeaveUntracksBeforeClosing(t *testing.T) {
	channel := newFakePresenceChannel()
	tracker := NewPresenceTracker(channel, selfID, 0, testTTL)
	require.NoError(t, tracker.Enter(context.Background()))

	require.NoError(t, tracker.Leave(context.Background()))

	assert.Equal(t, []string{"subscribe", "track:" + selfID, "untrack:" + selfID, "close"}, channel.callLog())

	// leaving twice does nothing
	require.NoError(t, tracker.Leave(context.Background()))
	assert.Len(t, channel.callLog(), 4)
}

func TestPresenceTracker_Heartbeat(t *testing.T) {
	channel := newFakePresenceChannel()
	tracker := NewPresenceTracker(channel, selfID, 10*time.Millisecond, testTTL)
	require.NoError(t, tracker.Enter(context.Background()))

	require.Eventually(t, func() bool {
		return channel.trackCount() >= 3
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, tracker.Leave(context.Background()))
	n := channel.trackCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, channel.trackCount())
}

func TestPresenceTracker_EnterFailsWhenTrackFails(t *testing.T) {
	channel := newFakePresenceChannel()
	channel.trackErr = errors.New("redis down")
	tracker := NewPresenceTracker(channel, selfID, 0, testTTL)

	assert.Error(t, tracker.Enter(context.Background()))
	assert.Contains(t, channel.callLog(), "close")
	assert.NoError(t, tracker.Leave(context.Background()))
}
