package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hupe1980/botmesh/core"
)

type recordingProcessor struct {
	mu     sync.Mutex
	events []*core.Event
	fail   map[string]bool
}

func (p *recordingProcessor) Process(_ context.Context, ev *core.Event) (*core.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	if p.fail[ev.ToID()] {
		return nil, errors.New("delivery failed")
	}
	return nil, nil
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func users(ids ...string) []core.Source {
	out := make([]core.Source, 0, len(ids))
	for _, id := range ids {
		out = append(out, core.Source{Type: "user", UserID: id})
	}
	return out
}

func TestFire(t *testing.T) {
	keep := false
	p := &recordingProcessor{fail: map[string]bool{"U3": true}}
	s, err := New(p, []Schedule{{
		Name:         "reminder",
		Cron:         "0 9 * * *",
		Recipients:   users("U1", "U2", "U3"),
		Intent:       "remind",
		Parameters:   map[string]any{"topic": "pizza"},
		Language:     "en",
		ClearContext: &keep,
	}})
	require.NoError(t, err)

	err = s.Fire(context.Background(), "reminder")
	require.Error(t, err)
	assert.ErrorContains(t, err, "push to U3")

	require.Len(t, p.events, 3)
	var to []string
	for _, ev := range p.events {
		assert.Equal(t, core.EventTypePush, ev.Type)
		assert.Equal(t, "remind", ev.Intent.Name)
		assert.Equal(t, "pizza", ev.Intent.Parameters["topic"])
		assert.Equal(t, "en", ev.Language)
		require.NotNil(t, ev.ClearContext)
		assert.False(t, *ev.ClearContext)
		to = append(to, ev.ToID())
	}
	sort.Strings(to)
	assert.Equal(t, []string{"U1", "U2", "U3"}, to)

	// Each event owns its parameters.
	p.events[0].Intent.Parameters["topic"] = "changed"
	assert.Equal(t, "pizza", p.events[1].Intent.Parameters["topic"])

	assert.Error(t, s.Fire(context.Background(), "missing"))
}

func TestAddValidates(t *testing.T) {
	s, err := New(&recordingProcessor{}, nil)
	require.NoError(t, err)

	assert.Error(t, s.Add(Schedule{Name: "x", Cron: "not cron", Intent: "i"}))
	assert.Error(t, s.Add(Schedule{Cron: "* * * * *", Intent: "i"}))
	require.NoError(t, s.Add(Schedule{Name: "x", Cron: "* * * * *", Intent: "i"}))
	assert.Error(t, s.Add(Schedule{Name: "x", Cron: "* * * * *", Intent: "i"}))

	_, err = New(&recordingProcessor{}, []Schedule{{Name: "bad", Cron: "* *", Intent: "i"}})
	assert.Error(t, err)
}

func TestNext(t *testing.T) {
	s, err := New(&recordingProcessor{}, nil)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC) }
	require.NoError(t, s.Add(Schedule{Name: "morning", Cron: "0 9 * * *", Intent: "i"}))

	next, ok := s.Next("morning")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), next)

	due := s.due(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	require.Len(t, due, 1)
	next, _ = s.Next("morning")
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), next)

	_, ok = s.Next("missing")
	assert.False(t, ok)
}

func TestRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := &recordingProcessor{}
	s, err := New(p, []Schedule{{Name: "tick", Cron: "* * * * * * *", Recipients: users("U1"), Intent: "ping"}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return p.count() >= 1 }, 5*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestRunWithoutSchedules(t *testing.T) {
	s, err := New(&recordingProcessor{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, s.Run(ctx))
}
