// Package scheduler launches skills on a cron schedule by injecting push
// events into the dispatcher.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/botmesh/core"
	"github.com/hupe1980/botmesh/logging"
)

// Processor handles one push event.
type Processor interface {
	Process(ctx context.Context, ev *core.Event) (*core.Context, error)
}

// Schedule pushes Intent to every recipient whenever Cron fires.
type Schedule struct {
	Name string `yaml:"name"`
	// Cron uses the cronexpr syntax: five, six or seven fields.
	Cron       string         `yaml:"cron"`
	Recipients []core.Source  `yaml:"recipients"`
	Intent     string         `yaml:"intent"`
	Parameters map[string]any `yaml:"parameters,omitempty"`
	Language   string         `yaml:"language,omitempty"`
	// ClearContext, when false, continues an ongoing conversation with the
	// recipient instead of starting a new one.
	ClearContext *bool `yaml:"clear_context,omitempty"`
}

// Options configures a Scheduler.
type Options struct {
	// Concurrency bounds the number of recipients processed at once.
	Concurrency int
	Logger      logging.Logger
}

type entry struct {
	Schedule
	expr *cronexpr.Expression
	next time.Time
}

// Scheduler fires schedules until its context is cancelled.
type Scheduler struct {
	processor Processor
	opts      Options
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// New validates schedules and creates a Scheduler.
func New(p Processor, schedules []Schedule, optFns ...func(o *Options)) (*Scheduler, error) {
	opts := Options{
		Concurrency: 8,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Scheduler{processor: p, opts: opts, now: time.Now, entries: map[string]*entry{}}
	for _, sc := range schedules {
		if err := s.Add(sc); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add registers a schedule. Names must be unique.
func (s *Scheduler) Add(sc Schedule) error {
	if sc.Name == "" || sc.Intent == "" {
		return errors.New("scheduler: name and intent are required")
	}
	expr, err := cronexpr.Parse(sc.Cron)
	if err != nil {
		return fmt.Errorf("scheduler: %s: %w", sc.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[sc.Name]; ok {
		return fmt.Errorf("scheduler: duplicate schedule %s", sc.Name)
	}
	s.entries[sc.Name] = &entry{Schedule: sc, expr: expr, next: expr.Next(s.now())}
	return nil
}

// Next returns when the named schedule fires next.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return e.next, true
}

// Run fires due schedules until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		wait, ok := s.untilNext()
		if !ok {
			<-ctx.Done()
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		for _, e := range s.due(s.now()) {
			if err := s.Fire(ctx, e.Name); err != nil {
				s.opts.Logger.Error("Schedule failed", "schedule", e.Name, "error", err)
			}
		}
	}
}

func (s *Scheduler) untilNext() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var earliest time.Time
	for _, e := range s.entries {
		if e.next.IsZero() {
			continue
		}
		if earliest.IsZero() || e.next.Before(earliest) {
			earliest = e.next
		}
	}
	if earliest.IsZero() {
		return 0, false
	}
	return earliest.Sub(s.now()), true
}

// due returns the schedules whose time has come and advances them.
func (s *Scheduler) due(now time.Time) []entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entry
	for _, e := range s.entries {
		if e.next.IsZero() || e.next.After(now) {
			continue
		}
		out = append(out, *e)
		e.next = e.expr.Next(now)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Fire pushes the named schedule to its recipients now. Failures of single
// recipients are joined.
func (s *Scheduler) Fire(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown schedule %s", name)
	}

	s.opts.Logger.Info("Firing schedule", "schedule", name, "intent", e.Intent, "recipients", len(e.Recipients))

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	if s.opts.Concurrency > 0 {
		g.SetLimit(s.opts.Concurrency)
	}
	for _, to := range e.Recipients {
		ev := core.NewPushEvent(to, core.Intent{Name: e.Intent, Parameters: cloneParams(e.Parameters)}, e.Language)
		ev.ClearContext = e.ClearContext
		g.Go(func() error {
			if _, err := s.processor.Process(gctx, ev); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("push to %s: %w", to.ID(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func cloneParams(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
