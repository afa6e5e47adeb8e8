package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/botmesh/core"
	"github.com/hupe1980/botmesh/logging"
)

const (
	prefixContext = "be_context_"
	prefixSession = "be_session_"

	// DefaultRetention is the lifetime of an untouched context.
	DefaultRetention = 600 * time.Second
)

var (
	// ErrConflict is returned by CompareAndPut when the stored context
	// changed since it was read.
	ErrConflict = errors.New("context was updated concurrently")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("memory closed")
)

// SkillFactory instantiates the skill whose OnAbort hook runs when a
// conversation expires unfinished.
type SkillFactory interface {
	Instantiate(name string, intent core.Intent) (*core.Skill, error)
}

// Options configures Memory.
type Options struct {
	Retention time.Duration
	// Skills resolves OnAbort hooks. Expiry still deletes and logs without it.
	Skills SkillFactory
	Audit  logging.SkillLogger
	Logger logging.Logger
}

// PutOption tunes a single Put.
type PutOption func(*putOptions)

type putOptions struct {
	owner     core.Bot
	retention time.Duration
}

// WithOwner records the bot handle OnAbort receives if the context expires.
func WithOwner(bot core.Bot) PutOption {
	return func(o *putOptions) { o.owner = bot }
}

// WithRetention overrides the retention for this Put.
func WithRetention(d time.Duration) PutOption {
	return func(o *putOptions) { o.retention = d }
}

// expiry is what a retention timer remembers about the Put that armed it.
type expiry struct {
	key       string
	updatedAt int64
	owner     core.Bot
	channelID string
	timer     *time.Timer
}

// Memory is the context store.
type Memory struct {
	backend Backend
	opts    Options

	baseCtx context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	timers    map[string]*expiry
	lastStamp int64
	closed    bool
	running   sync.WaitGroup
}

// New creates a Memory on top of backend. Memory takes ownership of the
// backend and closes it on Close.
func New(backend Backend, optFns ...func(o *Options)) *Memory {
	opts := Options{
		Retention: DefaultRetention,
		Audit:     logging.NoOpSkillLogger{},
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Memory{
		backend: backend,
		opts:    opts,
		baseCtx: ctx,
		cancel:  cancel,
		timers:  map[string]*expiry{},
	}
}

// Get loads the context stored under key, or nil.
func (m *Memory) Get(ctx context.Context, key string) (*core.Context, error) {
	b, err := m.backend.Get(ctx, prefixContext+key)
	if err != nil {
		return nil, fmt.Errorf("get context %s: %w", key, err)
	}
	if b == nil {
		return nil, nil
	}
	conv, err := core.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("decode context %s: %w", key, err)
	}
	return conv, nil
}

// Put stamps conv.UpdatedAt, stores it under key and re-arms the retention
// timer of key.
func (m *Memory) Put(ctx context.Context, key string, conv *core.Context, opts ...PutOption) error {
	po := m.putOptions(opts)
	if m.isClosed() {
		return ErrClosed
	}
	conv.UpdatedAt = m.stamp()
	b, err := conv.Encode()
	if err != nil {
		return fmt.Errorf("encode context %s: %w", key, err)
	}
	if err := m.backend.Put(ctx, prefixContext+key, b); err != nil {
		return fmt.Errorf("put context %s: %w", key, err)
	}
	return m.arm(key, conv.UpdatedAt, po)
}

// CompareAndPut stores conv only if the stored context still carries
// expectedUpdatedAt. Zero expects no stored context at all.
func (m *Memory) CompareAndPut(ctx context.Context, key string, conv *core.Context, expectedUpdatedAt int64, opts ...PutOption) error {
	po := m.putOptions(opts)
	if m.isClosed() {
		return ErrClosed
	}

	old, err := m.backend.Get(ctx, prefixContext+key)
	if err != nil {
		return fmt.Errorf("get context %s: %w", key, err)
	}
	if old != nil {
		cur, err := core.Decode(old)
		if err != nil {
			return fmt.Errorf("decode context %s: %w", key, err)
		}
		if cur.UpdatedAt != expectedUpdatedAt {
			return ErrConflict
		}
	} else if expectedUpdatedAt != 0 {
		return ErrConflict
	}

	conv.UpdatedAt = m.stamp()
	b, err := conv.Encode()
	if err != nil {
		return fmt.Errorf("encode context %s: %w", key, err)
	}
	ok, err := m.backend.CompareAndSwap(ctx, prefixContext+key, old, b)
	if err != nil {
		return fmt.Errorf("swap context %s: %w", key, err)
	}
	if !ok {
		return ErrConflict
	}
	return m.arm(key, conv.UpdatedAt, po)
}

// Del cancels the retention timer and removes the context and its session
// entry.
func (m *Memory) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	if e, ok := m.timers[key]; ok {
		e.timer.Stop()
		delete(m.timers, key)
	}
	m.mu.Unlock()
	return m.delete(ctx, key)
}

func (m *Memory) delete(ctx context.Context, key string) error {
	conv, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if conv == nil {
		return nil
	}
	if conv.SessionID != "" {
		if err := m.backend.Delete(ctx, prefixSession+conv.SessionID); err != nil {
			return fmt.Errorf("delete session %s: %w", conv.SessionID, err)
		}
	}
	if err := m.backend.Delete(ctx, prefixContext+key); err != nil {
		return fmt.Errorf("delete context %s: %w", key, err)
	}
	return nil
}

// GetSession returns the context id stored for a session, or "".
func (m *Memory) GetSession(ctx context.Context, sessionID string) (string, error) {
	b, err := m.backend.Get(ctx, prefixSession+sessionID)
	if err != nil {
		return "", fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return string(b), nil
}

// CreateSession maps a session id to a context id and returns the session id.
func (m *Memory) CreateSession(ctx context.Context, sessionID, contextID string) (string, error) {
	if err := m.backend.Put(ctx, prefixSession+sessionID, []byte(contextID)); err != nil {
		return "", fmt.Errorf("create session %s: %w", sessionID, err)
	}
	return sessionID, nil
}

// Close stops every retention timer, waits for running expiries and closes
// the backend.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for key, e := range m.timers {
		e.timer.Stop()
		delete(m.timers, key)
	}
	m.mu.Unlock()

	m.cancel()
	m.running.Wait()
	return m.backend.Close()
}

func (m *Memory) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Memory) putOptions(opts []PutOption) putOptions {
	po := putOptions{retention: m.opts.Retention}
	for _, o := range opts {
		o(&po)
	}
	return po
}

// stamp returns a millisecond timestamp strictly greater than the previous
// one handed out by this Memory.
func (m *Memory) stamp() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UnixMilli()
	if now <= m.lastStamp {
		now = m.lastStamp + 1
	}
	m.lastStamp = now
	return now
}

func (m *Memory) arm(key string, updatedAt int64, po putOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if old, ok := m.timers[key]; ok {
		old.timer.Stop()
	}
	e := &expiry{key: key, updatedAt: updatedAt, owner: po.owner}
	if po.owner != nil {
		e.channelID = po.owner.ChannelID()
	}
	e.timer = time.AfterFunc(po.retention, func() { m.expire(e) })
	m.timers[key] = e
	return nil
}

// expireOwned deletes the context of e only while the stored bytes are still
// the ones written by the Put that armed e. A write from another node in
// between wins.
func (m *Memory) expireOwned(ctx context.Context, e *expiry) (*core.Context, bool, error) {
	key := prefixContext + e.key
	b, err := m.backend.Get(ctx, key)
	if err != nil || b == nil {
		return nil, false, err
	}
	conv, err := core.Decode(b)
	if err != nil {
		return nil, false, fmt.Errorf("decode context %s: %w", e.key, err)
	}
	if conv.UpdatedAt != e.updatedAt {
		return nil, false, nil
	}

	deleted, err := m.backend.CompareAndDelete(ctx, key, b)
	if err != nil || !deleted {
		return nil, false, err
	}
	if conv.SessionID != "" {
		if err := m.backend.Delete(ctx, prefixSession+conv.SessionID); err != nil {
			m.opts.Logger.Warn("Session of expired context not deleted", "session", conv.SessionID, "error", err)
		}
	}
	return conv, true, nil
}

func (m *Memory) expire(e *expiry) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.timers[e.key] == e {
		delete(m.timers, e.key)
	}
	m.running.Add(1)
	m.mu.Unlock()
	defer m.running.Done()

	ctx := m.baseCtx
	logger := m.opts.Logger

	conv, deleted, err := m.expireOwned(ctx, e)
	if err != nil {
		logger.Error("Context expiry failed", "key", e.key, "error", err)
		return
	}
	if !deleted {
		logger.Debug("Context owned by a later update, skipping expiry", "key", e.key)
		return
	}
	logger.Debug("Context expired", "key", e.key)

	skillType := conv.SkillName()
	if conv.Confirming == "" || skillType == "" || skillType == core.DefaultSkillType {
		return
	}

	if err := m.opts.Audit.SkillStatus(ctx, e.channelID, e.key, conv.ChatID, skillType, logging.StatusAborted, logging.StatusPayload{Context: conv}); err != nil {
		logger.Warn("Audit log failed", "error", err)
	}

	if m.opts.Skills == nil || e.owner == nil {
		return
	}
	skill, err := m.opts.Skills.Instantiate(skillType, conv.Intent)
	if err != nil {
		logger.Debug("Skill of expired context not found", "skill", skillType, "error", err)
		return
	}
	if skill.OnAbort == nil {
		return
	}
	conv.Skill = skill
	if err := skill.OnAbort(ctx, e.owner, conv.Event, conv); err != nil {
		logger.Error("OnAbort failed", "skill", skillType, "error", err)
	}
}
