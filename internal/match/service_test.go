package match

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/peerprep/internal/match/queue"
)

func newServiceWithClock(staleAfter time.Duration) (*Service, *time.Time) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mgr := queue.NewManager(zerolog.Nop(), queue.Options{Now: func() time.Time { return now }})
	return NewService(mgr, ServiceOptions{StaleAfter: staleAfter}, zerolog.Nop()), &now
}

func TestServiceFindMatchNormalizesCriteria(t *testing.T) {
	svc, _ := newServiceWithClock(time.Minute)
	ctx := context.Background()

	pairing, err := svc.FindMatch(ctx, Criteria{
		UserID:       "alice",
		Difficulties: []string{" Easy ", "Easy", ""},
		Topics:       []string{"DP", "Graphs", "DP"},
	}, "c1")
	require.NoError(t, err)
	assert.Nil(t, pairing)

	pairing, err = svc.FindMatch(ctx, Criteria{
		UserID:       "bob",
		Difficulties: []string{"Easy"},
		Topics:       []string{"Graphs", "DP"},
	}, "c2")
	require.NoError(t, err)
	require.NotNil(t, pairing)
	assert.Equal(t, []string{"Easy"}, pairing.Match.Difficulties)
	assert.Equal(t, []string{"Graphs", "DP"}, pairing.Match.Topics)
}

func TestServiceFindMatchValidation(t *testing.T) {
	svc, _ := newServiceWithClock(time.Minute)
	cases := []Criteria{
		{UserID: "", Difficulties: []string{"Easy"}, Topics: []string{"DP"}},
		{UserID: "a", Topics: []string{"DP"}},
		{UserID: "a", Difficulties: []string{"Easy"}, Topics: []string{" "}},
	}
	for _, c := range cases {
		_, err := svc.FindMatch(context.Background(), c, "c")
		assert.ErrorIs(t, err, ErrInvalidCriteria)
	}
	assert.Equal(t, 0, svc.QueueLength())
}

func TestServiceExpireStale(t *testing.T) {
	svc, now := newServiceWithClock(30 * time.Second)

	_, err := svc.FindMatch(context.Background(), Criteria{UserID: "a", Difficulties: []string{"Easy"}, Topics: []string{"DP"}}, "c1")
	require.NoError(t, err)

	*now = now.Add(30 * time.Second)
	assert.Equal(t, 0, svc.ExpireStale(), "exactly at the threshold is not stale")

	*now = now.Add(time.Second)
	assert.Equal(t, 1, svc.ExpireStale())
	assert.Equal(t, 0, svc.QueueLength())
}

func TestServiceLeaveSessionIsIdempotent(t *testing.T) {
	svc, _ := newServiceWithClock(time.Minute)
	ctx := context.Background()
	c := Criteria{Difficulties: []string{"Easy"}, Topics: []string{"DP"}}

	c.UserID = "a"
	_, err := svc.FindMatch(ctx, c, "c1")
	require.NoError(t, err)
	c.UserID = "b"
	pairing, err := svc.FindMatch(ctx, c, "c2")
	require.NoError(t, err)
	require.NotNil(t, pairing)

	roomID, ok := svc.LeaveSession("a")
	assert.True(t, ok)
	assert.Equal(t, pairing.Match.RoomID, roomID)

	_, ok = svc.LeaveSession("a")
	assert.False(t, ok)

	_, stillActive := svc.ActiveRoom("b")
	assert.True(t, stillActive)
}

func TestServiceReleaseSession(t *testing.T) {
	svc, _ := newServiceWithClock(time.Minute)
	ctx := context.Background()
	c := Criteria{Difficulties: []string{"Easy"}, Topics: []string{"DP"}}

	c.UserID = "a"
	_, err := svc.FindMatch(ctx, c, "c1")
	require.NoError(t, err)
	c.UserID = "b"
	pairing, err := svc.FindMatch(ctx, c, "c2")
	require.NoError(t, err)
	require.NotNil(t, pairing)

	assert.False(t, svc.ReleaseSession("a", "some-other-room"))
	assert.True(t, svc.ReleaseSession("a", pairing.Match.RoomID))

	c.UserID = "a"
	pairing, err = svc.FindMatch(ctx, c, "c1")
	require.NoError(t, err)
	assert.Nil(t, pairing)
	assert.Equal(t, 0, svc.Position("a"))
}

func TestExpiryWorkerStopsOnCancel(t *testing.T) {
	svc, now := newServiceWithClock(time.Second)
	_, err := svc.FindMatch(context.Background(), Criteria{UserID: "a", Difficulties: []string{"Easy"}, Topics: []string{"DP"}}, "c1")
	require.NoError(t, err)
	*now = now.Add(time.Hour)

	worker := NewExpiryWorker(svc, 5*time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	require.Eventually(t, func() bool { return svc.QueueLength() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
