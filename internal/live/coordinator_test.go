package live

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorScenario(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	s, err := e.reg.Open(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, s.Views)
	assert.True(t, s.IsLive)

	bob, carol := newConn("bob-conn"), newConn("carol-conn")
	res, err := e.coord.RecordJoin(ctx, s.ID, bob, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Views)
	res, err = e.coord.RecordJoin(ctx, s.ID, carol, "carol")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Views)
	assert.Equal(t, 2, res.Members)

	for i := 0; i < 2; i++ {
		_, err = e.coord.RecordLike(ctx, s.ID)
		require.NoError(t, err)
	}
	c, err := e.coord.RecordComment(ctx, s.ID, "carol", "hi")
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)

	got, err := e.reg.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.CommentCount)

	require.NoError(t, e.reg.Close(ctx, s.ID))
	assert.Empty(t, e.reg.ListLive())

	assert.Equal(t, []int64{1, 2}, bob.counts(EventViewsUpdate))
	assert.Equal(t, []int64{2}, carol.counts(EventViewsUpdate))
	for _, conn := range []*fakeConn{bob, carol} {
		assert.Equal(t, []int64{1, 2}, conn.counts(EventLikesUpdate))
		evs := conn.received()
		require.NotEmpty(t, evs)
		assert.Equal(t, EventLiveEnded, evs[len(evs)-1].Type)

		var comments []CommentPayload
		for _, ev := range evs {
			if ev.Type == EventNewComment {
				comments = append(comments, ev.Payload.(CommentPayload))
			}
		}
		require.Len(t, comments, 1)
		assert.Equal(t, "carol", comments[0].Username)
		assert.Equal(t, "hi", comments[0].Comment)
		assert.False(t, comments[0].Time.IsZero())
	}

	stored := e.store.stream(s.ID)
	assert.Equal(t, int64(2), stored.Views)
	assert.Equal(t, int64(2), stored.Likes)
	assert.Equal(t, int64(1), stored.CommentCount)
	assert.False(t, stored.IsLive)
}

func TestCoordinatorConcurrentLikesLoseNothing(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	s, err := e.reg.Open(ctx, "alice")
	require.NoError(t, err)
	watcher := newConn("w")
	_, err = e.coord.RecordJoin(ctx, s.ID, watcher, "watcher")
	require.NoError(t, err)

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.coord.RecordLike(ctx, s.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := e.reg.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.Likes)
	assert.Equal(t, int64(n), e.store.stream(s.ID).Likes)

	// members observe counts in commit order: exactly 1..n
	seen := watcher.counts(EventLikesUpdate)
	require.Len(t, seen, n)
	for i, v := range seen {
		assert.Equal(t, int64(i+1), v)
	}
}

func TestCoordinatorConcurrentJoinsSameUser(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	s, err := e.reg.Open(ctx, "alice")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.coord.RecordJoin(ctx, s.ID, newConn(fmt.Sprintf("dave-%d", i)), "dave")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, e.tracker.Snapshot(s.ID), 1)
	got, err := e.reg.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Views)
}

func TestCoordinatorReconnectDoesNotCountTwice(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	s, err := e.reg.Open(ctx, "alice")
	require.NoError(t, err)

	first := newConn("c1")
	_, err = e.coord.RecordJoin(ctx, s.ID, first, "bob")
	require.NoError(t, err)
	e.coord.RecordLeave(s.ID, "c1")
	e.coord.RecordLeave(s.ID, "c1")

	second := newConn("c2")
	res, err := e.coord.RecordJoin(ctx, s.ID, second, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Views)
	assert.Equal(t, 1, res.Members)
	assert.Equal(t, []int64{1}, second.counts(EventViewsUpdate), "reconnect still receives the current count")
}

func TestCoordinatorUnknownAndClosedSessions(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.coord.RecordLike(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.coord.RecordComment(ctx, "missing", "bob", "hi")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.coord.RecordJoin(ctx, "missing", newConn("c"), "bob")
	assert.ErrorIs(t, err, ErrNotFound)

	s, err := e.reg.Open(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, e.reg.Close(ctx, s.ID))

	_, err = e.coord.RecordLike(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = e.coord.RecordComment(ctx, s.ID, "bob", "hi")
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = e.coord.RecordJoin(ctx, s.ID, newConn("c"), "bob")
	assert.ErrorIs(t, err, ErrSessionClosed)

	got, err := e.reg.Get(s.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Likes)
	assert.Zero(t, got.CommentCount)
}

func TestCoordinatorPersistenceFailureDoesNotStallBroadcast(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	s, err := e.reg.Open(ctx, "alice")
	require.NoError(t, err)
	c := newConn("c1")
	_, err = e.coord.RecordJoin(ctx, s.ID, c, "bob")
	require.NoError(t, err)

	e.store.fail.Store(true)
	_, err = e.coord.RecordLike(ctx, s.ID)
	assert.ErrorIs(t, err, ErrPersistence)
	_, err = e.coord.RecordComment(ctx, s.ID, "bob", "lost")
	assert.ErrorIs(t, err, ErrPersistence)

	e.store.fail.Store(false)
	n, err := e.coord.RecordLike(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "the committed count is kept")
	assert.Equal(t, []int64{2}, c.counts(EventLikesUpdate))
	assert.Equal(t, int64(2), e.store.stream(s.ID).Likes)
}

func TestCoordinatorCommentsKeepArrivalOrder(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	s, err := e.reg.Open(ctx, "alice")
	require.NoError(t, err)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	e.reg.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	var ids []string
	for _, text := range []string{"one", "two", "three"} {
		c, err := e.coord.RecordComment(ctx, s.ID, "bob", text)
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	assert.IsIncreasing(t, ids)

	stored, err := e.store.ListComments(ctx, s.ID, 0)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, "three", stored[2].Text)
}

func TestCoordinatorJoinPersistenceFailureKeepsMemberAttached(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	s, err := e.reg.Open(ctx, "alice")
	require.NoError(t, err)

	e.store.fail.Store(true)
	res, err := e.coord.RecordJoin(ctx, s.ID, newConn("c1"), "bob")
	assert.ErrorIs(t, err, ErrPersistence)
	assert.True(t, res.Attached)
	assert.Equal(t, 1, e.tracker.Count(s.ID))

	e.coord.RecordLeave(s.ID, "c1")
	assert.Zero(t, e.tracker.Count(s.ID))

	_, err = e.coord.RecordJoin(ctx, "missing", newConn("c2"), "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}
