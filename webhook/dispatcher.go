package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/botmesh/core"
	"github.com/hupe1980/botmesh/flow"
	"github.com/hupe1980/botmesh/logging"
	"github.com/hupe1980/botmesh/memory"
)

// ParallelEvent decides what happens to an event that arrives while an
// earlier event of the same user is still being processed.
type ParallelEvent string

const (
	// ParallelIgnore drops the event and releases the lock so that only one
	// event is lost if a turn never finished.
	ParallelIgnore ParallelEvent = "ignore"
	// ParallelAllow processes every event.
	ParallelAllow ParallelEvent = "allow"
)

// Store persists conversation contexts keyed by user.
type Store interface {
	Get(ctx context.Context, key string) (*core.Context, error)
	Put(ctx context.Context, key string, conv *core.Context, opts ...memory.PutOption) error
	CompareAndPut(ctx context.Context, key string, conv *core.Context, expectedUpdatedAt int64, opts ...memory.PutOption) error
	Del(ctx context.Context, key string) error
}

var _ Store = (*memory.Memory)(nil)

// Options configures a Dispatcher.
type Options struct {
	ParallelEvent ParallelEvent
	// StrictLock marks events in progress with a compare-and-put so two
	// instances sharing a store cannot both claim the same turn.
	StrictLock bool
	// BeaconSkills maps beacon event types (enter, leave, banner) to skills.
	BeaconSkills map[string]string
	// ActiveEventSkills maps follow, unfollow, join and leave to skills.
	ActiveEventSkills map[string]string

	Audit  logging.SkillLogger
	Logger logging.Logger
}

// Dispatcher runs conversation turns for inbound events. It is safe for
// concurrent use.
type Dispatcher struct {
	engine *flow.Engine
	store  Store
	opts   Options
}

// New creates a Dispatcher.
func New(engine *flow.Engine, store Store, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		ParallelEvent:     ParallelIgnore,
		BeaconSkills:      map[string]string{},
		ActiveEventSkills: map[string]string{},
		Audit:             logging.NoOpSkillLogger{},
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Dispatcher{engine: engine, store: store, opts: opts}
}

// turn is the outcome of running one variant.
type turn struct {
	conv *core.Context
	bot  core.Bot
	// skipped is set when no variant ran for the event.
	skipped bool
}

// Process runs the turn for ev and returns the resulting context, or nil
// when nothing is left to persist. A skill switching the intent starts the
// new intent with a synthetic event in the same call.
func (d *Dispatcher) Process(ctx context.Context, ev *core.Event) (*core.Context, error) {
	for {
		// Push events are keyed by their recipient; SenderID handles both.
		key := ev.SenderID()

		t, err := d.run(ctx, key, ev)
		if err != nil {
			return nil, err
		}
		if t.skipped {
			return nil, nil
		}

		if t.conv == nil || t.conv.SwitchIntent == nil {
			return t.conv, d.persist(ctx, key, ev, t)
		}

		next := switchEvent(ev, *t.conv.SwitchIntent, t.conv.SenderLanguage)
		d.opts.Logger.Debug("Switching intent", "key", key, "intent", t.conv.SwitchIntent.Name)
		if t.conv.Clear {
			if err := d.store.Del(ctx, key); err != nil {
				return nil, err
			}
		} else {
			t.conv.ResetFlags()
			if err := d.store.Put(ctx, key, t.conv, memory.WithOwner(t.bot)); err != nil {
				return nil, err
			}
		}
		ev = next
	}
}

func (d *Dispatcher) run(ctx context.Context, key string, ev *core.Event) (turn, error) {
	logger := d.opts.Logger

	if d.isValidationEvent(ev) {
		logger.Debug("Webhook validation event skipped")
		return turn{skipped: true}, nil
	}

	conv, err := d.store.Get(ctx, key)
	if err != nil {
		return turn{}, err
	}

	if conv != nil && conv.InProgress != nil && d.opts.ParallelEvent == ParallelIgnore && ev.IdentifyEventType() != core.EventTypePush {
		logger.Info("Previous event in progress, event ignored", "key", key, "type", ev.IdentifyEventType())
		conv.InProgress = nil
		if err := d.store.Put(ctx, key, conv); err != nil {
			return turn{}, err
		}
		return turn{skipped: true}, nil
	}

	conv, err = d.claim(ctx, key, conv, ev)
	if errors.Is(err, memory.ErrConflict) {
		logger.Info("Event claimed concurrently, event ignored", "key", key)
		return turn{skipped: true}, nil
	}
	if err != nil {
		return turn{}, err
	}

	name, conv, ok := d.route(ev, conv)
	if !ok {
		conv.InProgress = nil
		if err := d.store.Put(ctx, key, conv); err != nil {
			return turn{}, err
		}
		return turn{skipped: true}, nil
	}
	logger.Debug("Flow selected", "key", key, "flow", name)

	v, err := d.engine.Select(name, ev, conv)
	if err != nil {
		return turn{}, d.abend(ctx, key, ev, conv, nil, err)
	}
	start := time.Now()
	out, err := v.Run(ctx)
	skillName := conv.SkillName()
	if out != nil {
		skillName = out.SkillName()
	}
	logging.LogTurn(logger, name, skillName, time.Since(start), err)
	if err != nil {
		return turn{}, d.abend(ctx, key, ev, conv, v.Bot(), err)
	}
	return turn{conv: out, bot: v.Bot()}, nil
}

// claim marks ev as in progress for key. With StrictLock the mark only
// succeeds if nobody stored a context since it was read.
func (d *Dispatcher) claim(ctx context.Context, key string, conv *core.Context, ev *core.Event) (*core.Context, error) {
	var expected int64
	if conv == nil {
		conv = core.NewContext(core.ContextOptions{})
	} else {
		expected = conv.UpdatedAt
	}
	conv.InProgress = ev

	if d.opts.StrictLock {
		return conv, d.store.CompareAndPut(ctx, key, conv, expected)
	}
	return conv, d.store.Put(ctx, key, conv)
}

// route picks the flow variant for ev and the context it runs on. It
// reports false when the event has no skill to run.
func (d *Dispatcher) route(ev *core.Event, conv *core.Context) (string, *core.Context, bool) {
	fresh := func(flowName, intent string) *core.Context {
		c := core.NewContext(core.ContextOptions{Flow: flowName, Event: ev, Intent: core.Intent{Name: intent}})
		c.InProgress = ev
		return c
	}

	switch t := ev.IdentifyEventType(); t {
	case core.EventTypeFollow, core.EventTypeUnfollow, core.EventTypeJoin, core.EventTypeLeave:
		s, ok := d.opts.ActiveEventSkills[t]
		if !ok || s == "" {
			d.opts.Logger.Debug("No skill for active event", "type", t)
			return "", conv, false
		}
		return core.FlowActiveEvent, fresh(t, s), true

	case core.EventTypeBeacon:
		s, ok := d.opts.BeaconSkills[ev.BeaconEventType()]
		if !ok || s == "" {
			d.opts.Logger.Debug("No skill for beacon event", "type", ev.BeaconEventType())
			return "", conv, false
		}
		return core.FlowBeacon, fresh(core.FlowBeacon, s), true

	case core.EventTypePush:
		if conv.Intent.Name != "" && ev.ClearContext != nil && !*ev.ClearContext {
			conv.Flow = core.FlowPush
			conv.Event = ev
			return core.FlowPush, conv, true
		}
		return core.FlowPush, fresh(core.FlowPush, ""), true
	}

	if conv.Intent.Name == "" {
		return core.FlowStartConversation, fresh(core.FlowStartConversation, ""), true
	}

	name := core.FlowBtw
	if conv.Confirming != "" {
		name = core.FlowReply
	}
	conv.Flow = name
	conv.Event = ev
	return name, conv, true
}

// abend runs the OnAbend hook of the active skill, logs the failure and
// drops the conversation.
func (d *Dispatcher) abend(ctx context.Context, key string, ev *core.Event, conv *core.Context, bot core.Bot, cause error) error {
	logger := d.opts.Logger
	logger.Error("Turn failed", "key", key, "error", cause)

	if s := conv.Skill; s != nil && s.OnAbend != nil && bot != nil {
		if err := s.OnAbend(ctx, cause, bot, ev, conv); err != nil {
			logger.Error("OnAbend failed", "skill", s.Type, "error", err)
		}
	}

	chatID := conv.ChatID
	if chatID == "" {
		chatID = "unknown_chat_id"
	}
	skillName := conv.SkillName()
	if skillName == "" {
		skillName = "unknown_skill"
	}
	if err := d.opts.Audit.SkillStatus(ctx, ev.ChannelID, key, chatID, skillName, logging.StatusAbended, logging.StatusPayload{
		Context: conv,
		Err:     cause,
	}); err != nil {
		logger.Warn("Audit log failed", "error", err)
	}

	if err := d.store.Del(ctx, key); err != nil {
		logger.Error("Context not deleted after failure", "key", key, "error", err)
	}
	return fmt.Errorf("process %s event: %w", ev.IdentifyEventType(), cause)
}

// persist stores the finished turn or drops it when the conversation is
// over.
func (d *Dispatcher) persist(ctx context.Context, key string, ev *core.Event, t turn) error {
	if t.conv == nil || t.conv.Clear {
		d.opts.Logger.Debug("Context cleared", "key", key)
		return d.store.Del(ctx, key)
	}
	t.conv.InProgress = nil
	t.conv.Previous.Event = ev
	return d.store.Put(ctx, key, t.conv, memory.WithOwner(t.bot))
}

// isValidationEvent detects the dummy events LINE sends when the webhook
// URL is verified.
func (d *Dispatcher) isValidationEvent(ev *core.Event) bool {
	if d.engine.Messenger().Type() != "line" {
		return false
	}
	return ev.ReplyToken == "00000000000000000000000000000000" || ev.ReplyToken == "ffffffffffffffffffffffffffffffff"
}

// switchEvent synthesises the event that starts intent after a skill
// called SwitchIntent.
func switchEvent(ev *core.Event, intent core.Intent, language string) *core.Event {
	if ev.IdentifyEventType() == core.EventTypePush && ev.To != nil {
		next := core.NewPushEvent(*ev.To, intent, language)
		next.ChannelID = ev.ChannelID
		return next
	}

	data, _ := json.Marshal(map[string]any{
		"type":     "intent",
		"intent":   intent,
		"language": language,
	})
	return &core.Event{
		Type:       core.EventTypePostback,
		ChannelID:  ev.ChannelID,
		ReplyToken: ev.ReplyToken,
		Timestamp:  ev.Timestamp,
		Source:     ev.Source,
		Postback:   &core.Postback{Data: string(data)},
	}
}
