package beat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/circle/internal/dispatch"
	"github.com/shaiso/circle/internal/tasks"
)

type sent struct {
	task string
	host string
	args []any
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (s *fakeSender) Send(_ context.Context, name, host string, args ...any) (*dispatch.AsyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	s.sent = append(s.sent, sent{task: name, host: host, args: args})
	return &dispatch.AsyncResult{ID: fmt.Sprintf("task-%d", len(s.sent)), Task: name}, nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeLeader struct {
	mu       sync.Mutex
	leader   bool
	acquires int
	released bool
}

func (l *fakeLeader) Acquire(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	return l.leader, nil
}

func (l *fakeLeader) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = true
	return nil
}

func newBeat(t *testing.T, sender Sender, entries ...Entry) *Beat {
	t.Helper()
	b, err := New(Config{
		Sender:   sender,
		Catalog:  tasks.Default(),
		Entries:  entries,
		Host:     "localhost",
		Interval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	return b
}

func TestParseSchedule(t *testing.T) {
	for _, spec := range []string{"@every 10m", "@hourly", "*/5 * * * *", "0 3 * * 1"} {
		_, err := ParseSchedule(spec)
		assert.NoError(t, err, spec)
	}

	_, err := ParseSchedule("every ten minutes")
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	// секунды не поддерживаются
	_, err = ParseSchedule("0 */5 * * * *")
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestParseSchedule_Next(t *testing.T) {
	from := time.Date(2026, 3, 1, 10, 7, 0, 0, time.UTC)

	schedule, err := ParseSchedule("*/15 * * * *")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC), schedule.Next(from))

	schedule, err = ParseSchedule("@every 10m")
	require.NoError(t, err)
	assert.Equal(t, from.Add(10*time.Minute), schedule.Next(from))
}

func TestNew_Validation(t *testing.T) {
	sender := &fakeSender{}

	_, err := New(Config{Sender: sender, Catalog: tasks.Default(), Entries: []Entry{
		{Name: "gc", Task: tasks.ManagerGarbageCollector, Schedule: "@every 10m"},
		{Name: "gc", Task: tasks.ManagerGarbageCollector, Schedule: "@hourly"},
	}})
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	_, err = New(Config{Sender: sender, Catalog: tasks.Default(), Entries: []Entry{
		{Name: "x", Task: "manager.nope", Schedule: "@hourly"},
	}})
	assert.ErrorIs(t, err, ErrUnknownTask)

	_, err = New(Config{Sender: sender, Entries: []Entry{
		{Name: "x", Task: tasks.ManagerGarbageCollector, Schedule: "soon"},
	}})
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = New(Config{})
	assert.Error(t, err)
}

func TestTick_DefaultEntry(t *testing.T) {
	sender := &fakeSender{}
	b := newBeat(t, sender, DefaultEntries()...)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// первый тик только планирует
	n, err := b.Tick(context.Background(), start)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, start.Add(10*time.Minute), b.Next())

	n, err = b.Tick(context.Background(), start.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = b.Tick(context.Background(), start.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, tasks.ManagerGarbageCollector, sender.sent[0].task)
	assert.Equal(t, "localhost", sender.sent[0].host)
	assert.Equal(t, start.Add(20*time.Minute), b.Next())

	st := b.Entries()
	require.Len(t, st, 1)
	assert.Equal(t, "task-1", st[0].LastTaskID)
	assert.Equal(t, start.Add(10*time.Minute), st[0].LastRun)
}

func TestTick_ExplicitHostAndArgs(t *testing.T) {
	sender := &fakeSender{}
	b := newBeat(t, sender, Entry{
		Name:     "cleanup-node01",
		Task:     tasks.StorageDelete,
		Host:     "node01",
		Args:     []any{map[string]any{"name": "tmp.qcow2"}},
		Schedule: "@hourly",
	})
	start := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	_, _ = b.Tick(context.Background(), start)
	n, err := b.Tick(context.Background(), start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "node01", sender.sent[0].host)
	assert.Len(t, sender.sent[0].args, 1)
}

func TestTick_FailedSendStaysDue(t *testing.T) {
	sender := &fakeSender{err: errors.New("broker down")}
	b := newBeat(t, sender, DefaultEntries()...)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, _ = b.Tick(context.Background(), start)
	due := b.Next()

	n, err := b.Tick(context.Background(), due)
	assert.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, due, b.Next(), "entry should stay due")

	sender.err = nil
	n, err = b.Tick(context.Background(), due.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRun_FollowerDoesNotTick(t *testing.T) {
	sender := &fakeSender{}
	b := newBeat(t, sender, Entry{Name: "often", Task: tasks.ManagerGarbageCollector, Schedule: "@every 1s"})
	leader := &fakeLeader{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, b.Run(ctx, leader))

	assert.Zero(t, sender.count())
	assert.True(t, b.Next().IsZero(), "follower should not tick")
	assert.Positive(t, leader.acquires)
	assert.False(t, leader.released)
}

func TestRun_LeaderTicksAndReleases(t *testing.T) {
	sender := &fakeSender{}
	b := newBeat(t, sender, Entry{Name: "often", Task: tasks.ManagerGarbageCollector, Schedule: "@every 1s"})
	leader := &fakeLeader{leader: true}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, b.Run(ctx, leader))

	assert.False(t, b.Next().IsZero(), "leader should tick")
	assert.True(t, leader.released)
}
