package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/botmesh/core"
	"github.com/hupe1980/botmesh/logging"
	"github.com/hupe1980/botmesh/mind"
	"github.com/hupe1980/botmesh/param"
	"github.com/hupe1980/botmesh/parser"
	"github.com/hupe1980/botmesh/skill"
)

// ErrUnknownFlow is returned by Select for an unknown variant name.
var ErrUnknownFlow = errors.New("unknown flow")

// SkillRegistry instantiates skills and resolves parameter descriptors.
type SkillRegistry interface {
	Has(name string) bool
	Instantiate(name string, intent core.Intent) (*core.Skill, error)
	Revive(s *core.Skill, history []core.ParamChange) error
	Parameter(d core.ParameterDescriptor) (*core.Parameter, error)
}

var _ SkillRegistry = (*skill.Registry)(nil)

// Options configures an Engine.
type Options struct {
	// Translator is optional. Without it the sender language stays unset.
	Translator core.Translator
	// LangDetection detects the sender language of free text.
	LangDetection bool
	// Translation translates free text into Language before classification.
	Translation bool

	Parsers *parser.Registry
	Audit   logging.SkillLogger
	Logger  logging.Logger

	// Language is the language the bot is written in.
	Language string
	// DefaultIntent is what the classifier returns for unknown sentences.
	DefaultIntent string
	// DefaultSkill runs for the default intent.
	DefaultSkill string
	// ModifyPreviousParameterIntent rewinds the conversation by one answer.
	ModifyPreviousParameterIntent string
	// PassThroughWebhook receives events the messenger cannot handle.
	PassThroughWebhook string
}

// Engine holds the collaborators shared by every turn. It is safe for
// concurrent use; per-turn state lives in Flow.
type Engine struct {
	messenger core.Messenger
	nlu       core.IntentClassifier
	skills    SkillRegistry
	resolver  *param.Resolver
	mind      *mind.Classifier
	opts      Options
}

// NewEngine creates an Engine.
func NewEngine(messenger core.Messenger, nlu core.IntentClassifier, skills SkillRegistry, optFns ...func(o *Options)) *Engine {
	opts := Options{
		LangDetection: true,
		Parsers:       parser.NewRegistry(),
		Audit:         logging.NoOpSkillLogger{},
		Logger:        logging.NoOpLogger{},
		Language:      "ja",
		DefaultIntent: "input.unknown",
		DefaultSkill:  core.DefaultSkillType,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Engine{
		messenger: messenger,
		nlu:       nlu,
		skills:    skills,
		resolver: param.New(func(o *param.Options) {
			o.Logger = opts.Logger
		}),
		mind: mind.New(nlu, skills, func(o *mind.Options) {
			o.DefaultIntent = opts.DefaultIntent
			o.ModifyPreviousParameterIntent = opts.ModifyPreviousParameterIntent
			o.Logger = opts.Logger
		}),
		opts: opts,
	}
}

// Messenger returns the messenger the engine replies through.
func (e *Engine) Messenger() core.Messenger { return e.messenger }

// DefaultIntent returns the configured default intent name.
func (e *Engine) DefaultIntent() string { return e.opts.DefaultIntent }

func (e *Engine) instantiate(intent core.Intent) (*core.Skill, error) {
	name := intent.Name
	if name == e.opts.DefaultIntent {
		name = e.opts.DefaultSkill
	}
	return e.skills.Instantiate(name, intent)
}

// Applied is the outcome of applying a value to a parameter. Err holds the
// rejection when the parser refused the value.
type Applied struct {
	Name  string
	Value any
	Err   error
}

// Flow is the state of one turn: the event, the live context and the bot
// handed to skill hooks.
type Flow struct {
	engine *Engine
	event  *core.Event
	conv   *core.Context
	bot    *Bot
}

// newFlow binds the skill of conv.Intent and revives its dynamic
// parameters.
func (e *Engine) newFlow(event *core.Event, conv *core.Context) (*Flow, error) {
	f := &Flow{engine: e, event: event, conv: conv}
	f.bot = &Bot{flow: f}

	if conv.Intent.Name == "" {
		return f, nil
	}
	s, err := e.instantiate(conv.Intent)
	if err != nil {
		return nil, err
	}
	if err := e.skills.Revive(s, conv.ParamChangeHistory); err != nil {
		return nil, fmt.Errorf("revive skill %s: %w", s.Type, err)
	}
	conv.Skill = s

	if len(conv.ToConfirm) == 0 {
		conv.ToConfirm = param.IdentifyToConfirm(s.RequiredParameters, conv.Confirmed)
	}
	return f, nil
}

// Bot returns the handle given to skill hooks.
func (f *Flow) Bot() core.Bot { return f.bot }

// Context returns the live conversation context.
func (f *Flow) Context() *core.Context { return f.conv }

func (f *Flow) logger() logging.Logger { return f.engine.opts.Logger }

func (f *Flow) turn() param.Turn {
	return param.Turn{Bot: f.bot, Event: f.event, Conv: f.conv}
}

// bindSkill replaces the live skill with the one for intent. A missing
// skill keeps the current one and reports false.
func (f *Flow) bindSkill(intent core.Intent) (bool, error) {
	s, err := f.engine.instantiate(intent)
	if errors.Is(err, core.ErrSkillNotFound) {
		f.logger().Warn("Skill not found", "intent", intent.Name)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	f.conv.Skill = s
	return true, nil
}

// ParseParameter validates value against the named parameter. A parse func
// takes precedence over a built-in parser. Without either the value is
// accepted as is, unless strict is set.
func (f *Flow) ParseParameter(ctx context.Context, name string, value any, strict bool) (any, error) {
	p, _ := f.conv.Skill.Lookup(f.conv, name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrParameterNotFound, name)
	}
	switch {
	case p.ParseFunc != nil:
		return p.ParseFunc(ctx, value, f.bot, f.event, f.conv)
	case p.Parser != nil:
		return f.engine.opts.Parsers.Parse(ctx, p.Parser.Type, value, p.Parser.Policy)
	case strict:
		return nil, core.Reject("be_parser__no_parser")
	}
	return value, nil
}

// ApplyParameter parses value and stores it as the answer to name. It
// returns nil when the active skill does not declare name. A rejected
// value is reported in Applied.Err; any other parser error is returned.
func (f *Flow) ApplyParameter(ctx context.Context, name string, value any, implicit bool) (*Applied, error) {
	p, typ := f.conv.Skill.Lookup(f.conv, name)
	if typ == core.NotApplicable {
		f.logger().Debug("Parameter not applicable", "parameter", name)
		return nil, nil
	}

	parsed, err := f.ParseParameter(ctx, name, value, false)
	if err != nil {
		if errors.Is(err, core.ErrRejected) {
			f.logger().Debug("Value rejected", "parameter", name, "code", core.RejectionCode(err))
			return &Applied{Name: name, Value: value, Err: err}, nil
		}
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	f.addParameter(p, parsed)
	f.logger().Debug("Parameter applied", "parameter", name, "implicit", implicit)
	return &Applied{Name: name, Value: parsed}, nil
}

func (f *Flow) addParameter(p *core.Parameter, value any) {
	conv := f.conv
	if p.List != nil {
		var list []any
		switch existing := conv.Confirmed[p.Name].(type) {
		case nil:
		case []any:
			list = existing
		default:
			list = []any{existing}
		}
		if p.List.Order == "old" {
			list = append(list, value)
		} else {
			list = append([]any{value}, list...)
		}
		conv.Confirmed[p.Name] = list
	} else {
		conv.Confirmed[p.Name] = value
	}

	conv.ToConfirm = removeName(conv.ToConfirm, p.Name)
	conv.Confirming = ""
	delete(conv.Heard, p.Name)
	conv.Previous.Confirmed = prependName(conv.Previous.Confirmed, p.Name)
	conv.Previous.Processed = prependName(conv.Previous.Processed, p.Name)
}

// react runs the reaction hook of the applied parameter.
func (f *Flow) react(ctx context.Context, a *Applied) error {
	if a == nil {
		return nil
	}
	p, _ := f.conv.Skill.Lookup(f.conv, a.Name)
	if p == nil || p.Reaction == nil {
		return nil
	}
	if err := p.Reaction(ctx, a.Err, a.Value, f.bot, f.event, f.conv); err != nil {
		return fmt.Errorf("reaction of %s: %w", a.Name, err)
	}
	return nil
}

func (f *Flow) preact(ctx context.Context, p *core.Parameter) error {
	if p.Preaction == nil {
		return nil
	}
	if err := p.Preaction(ctx, f.bot, f.event, f.conv); err != nil {
		return fmt.Errorf("preaction of %s: %w", p.Name, err)
	}
	return nil
}

// ProcessParameters applies the values of input to the parameters at the
// head of ToConfirm, one after another. Values that do not belong to the
// head are kept in Heard for later turns. Array values feed list
// sub-parameters one element at a time.
func (f *Flow) ProcessParameters(ctx context.Context, input map[string]any) error {
	if len(input) == 0 {
		return nil
	}
	conv := f.conv
	input = copyMap(input)
	if conv.Heard == nil {
		conv.Heard = map[string]any{}
	}

	for len(input) > 0 {
		p, err := f.engine.resolver.Pop(ctx, f.turn())
		if err != nil {
			return err
		}

		if p == nil {
			if conv.SubParameter && conv.ParentParameter.List {
				parent := conv.ParentParameter.Name
				more := hasPendingElements(input, conv.Confirmed)
				if err := f.ApplySubParameters(ctx); err != nil {
					return err
				}
				if more {
					if err := f.bot.Collect(parent); err != nil {
						return err
					}
				}
				continue
			}
			mergeInto(conv.Heard, input)
			return nil
		}

		v, ok := input[p.Name]
		if !ok || isEmpty(v) {
			mergeInto(conv.Heard, input)
			return nil
		}

		if err := f.preact(ctx, p); err != nil {
			return err
		}

		listSub := conv.SubParameter && conv.ParentParameter.List
		arr, isArr := v.([]any)
		if listSub && isArr {
			v = arr[0]
		}

		applied, err := f.ApplyParameter(ctx, p.Name, v, true)
		if err != nil {
			return err
		}
		if err := f.react(ctx, applied); err != nil {
			return err
		}

		if listSub && isArr && len(arr) > 1 {
			input[p.Name] = arr[1:]
		} else {
			delete(input, p.Name)
		}
	}
	return nil
}

// ApplySubParameters returns from a sub-parameter collection: the saved
// parent is restored and the collected values are applied to the parent
// parameter as one map.
func (f *Flow) ApplySubParameters(ctx context.Context) error {
	conv := f.conv
	if len(conv.Parent) == 0 {
		return core.ErrNoParent
	}
	parent := conv.Parent[0]
	if conv.ParentParameter.Name != parent.Confirming {
		return fmt.Errorf("%w: %q != %q", core.ErrParentMismatch, conv.ParentParameter.Name, parent.Confirming)
	}

	collected := copyMap(conv.Confirmed)
	heard := conv.Heard
	queue := conv.MessageQueue

	conv.Restore(parent)
	if conv.Heard == nil {
		conv.Heard = map[string]any{}
	}
	mergeInto(conv.Heard, heard)
	conv.MessageQueue = append(conv.MessageQueue, queue...)

	f.logger().Debug("Sub parameters collected", "parameter", conv.Confirming)
	return f.bot.ApplyParameter(ctx, conv.Confirming, collected, false)
}

// ModifyPreviousParameter puts the most recently processed parameter back
// at the head of ToConfirm. Parameters skipped by their condition are
// rewound together with the confirmed one before them.
func (f *Flow) ModifyPreviousParameter(_ context.Context) error {
	conv := f.conv
	for len(conv.Previous.Processed) > 0 {
		name := conv.Previous.Processed[0]
		if _, typ := conv.Skill.Lookup(conv, name); typ == core.NotApplicable {
			return nil
		}
		if err := f.bot.Collect(name); err != nil {
			return err
		}
		conv.Previous.Processed = conv.Previous.Processed[1:]

		if len(conv.Previous.Confirmed) == 0 {
			return nil
		}
		if conv.Previous.Confirmed[0] == name {
			conv.Previous.Confirmed = conv.Previous.Confirmed[1:]
			return nil
		}
	}
	return nil
}

// RestartConversation archives the current conversation and starts intent
// over with a fresh context.
func (f *Flow) RestartConversation(ctx context.Context, intent core.Intent) error {
	conv := f.conv
	archive := conv.ArchiveSnapshot()

	fresh := core.NewContext(core.ContextOptions{
		Intent:         intent,
		Flow:           conv.Flow,
		Event:          conv.Event,
		SenderLanguage: conv.SenderLanguage,
	})
	fresh.Archive = archive
	fresh.Skill = conv.Skill
	*conv = *fresh

	found, err := f.bindSkill(intent)
	if err != nil || !found {
		return err
	}
	return f.launch(ctx)
}

// ChangeIntent archives the current conversation and starts intent. The
// parent stack survives so a sub-skill can still return.
func (f *Flow) ChangeIntent(ctx context.Context, intent core.Intent) error {
	conv := f.conv
	archive := conv.ArchiveSnapshot()

	fresh := core.NewContext(core.ContextOptions{
		Intent:         intent,
		Flow:           conv.Flow,
		Event:          conv.Event,
		SenderLanguage: conv.SenderLanguage,
		Parent:         conv.Parent,
		SubSkill:       conv.SubSkill,
	})
	fresh.Archive = archive
	fresh.Skill = conv.Skill
	*conv = *fresh

	found, err := f.bindSkill(intent)
	if err != nil || !found {
		return err
	}

	if conv.Skill.TakeOverParameter && len(archive) > 0 {
		conv.Global = orEmpty(archive[0].Global)
		conv.Confirmed = orEmpty(archive[0].Confirmed)
		conv.Heard = orEmpty(archive[0].Heard)
	}
	return f.launch(ctx)
}

// Dig saves the current conversation as a sub_skill parent and starts
// intent. The parent resumes once the sub skill finishes.
func (f *Flow) Dig(ctx context.Context, intent core.Intent) error {
	conv := f.conv
	parent := conv.Clone()
	parent.Skill = nil
	parent.Reason = core.ReasonSubSkill
	conv.Parent = append([]*core.Context{parent}, conv.Parent...)
	conv.SubSkill = true

	f.logger().Debug("Digging into sub skill", "intent", intent.Name, "parent", parent.SkillType)
	return f.ChangeIntent(ctx, intent)
}

// launch runs the common start of a freshly bound skill.
func (f *Flow) launch(ctx context.Context) error {
	conv := f.conv
	if len(conv.ToConfirm) == 0 {
		conv.ToConfirm = param.IdentifyToConfirm(conv.Skill.RequiredParameters, conv.Confirmed)
	}
	f.status(ctx, logging.StatusLaunched, nil)

	if err := f.begin(ctx); err != nil {
		return err
	}
	if conv.Terminated() {
		return nil
	}
	return f.ProcessParameters(ctx, conv.Intent.Parameters)
}

func (f *Flow) begin(ctx context.Context) error {
	s := f.conv.Skill
	if s == nil || s.Begin == nil {
		return nil
	}
	if err := s.Begin(ctx, f.bot, f.event, f.conv); err != nil {
		return fmt.Errorf("begin of %s: %w", s.Type, err)
	}
	return nil
}

// Respond ends the turn: it collects the next parameter or finishes the
// skill. Calling it again on its own result without new input changes
// nothing but the delivery of the same question.
func (f *Flow) Respond(ctx context.Context) (*core.Context, error) {
	conv := f.conv
	if conv.Skill == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrSkillNotFound, conv.Intent.Name)
	}

	for {
		switch {
		case conv.Pause:
			conv.Pause = false
			return conv, nil
		case conv.Exit:
			conv.Confirming = ""
			conv.Exit = false
			return conv, nil
		case conv.Init:
			conv.Clear = true
			return conv, nil
		}

		if conv.SubParameter && len(conv.ToConfirm) == 0 {
			if err := f.ApplySubParameters(ctx); err != nil {
				return nil, err
			}
			continue
		}

		if len(conv.Heard) > 0 {
			heard := conv.Heard
			conv.Heard = map[string]any{}
			if err := f.ProcessParameters(ctx, heard); err != nil {
				return nil, err
			}
		}

		if len(conv.ToConfirm) > 0 {
			asked, err := f.collect(ctx)
			if err != nil {
				return nil, err
			}
			if asked {
				return conv, nil
			}
			continue
		}

		if s := conv.Skill; s.Finish != nil {
			if err := s.Finish(ctx, f.bot, f.event, conv); err != nil {
				return nil, fmt.Errorf("finish of %s: %w", s.Type, err)
			}
		}
		// Finish may have asked for more.
		if len(conv.ToConfirm) > 0 || conv.Terminated() {
			continue
		}

		f.status(ctx, logging.StatusCompleted, nil)

		if conv.SubSkill && len(conv.Parent) > 0 && conv.Parent[0].Reason == core.ReasonSubSkill {
			if err := f.resumeParent(); err != nil {
				return nil, err
			}
			return conv, nil
		}

		if conv.Skill.ClearsContextOnFinish() {
			conv.Clear = true
		} else {
			conv.ParamChangeHistory = []core.ParamChange{}
		}
		return conv, nil
	}
}

// resumeParent restores the sub_skill parent and binds its skill again.
func (f *Flow) resumeParent() error {
	conv := f.conv
	conv.Restore(conv.Parent[0])

	s, err := f.engine.instantiate(conv.Intent)
	if err != nil {
		return fmt.Errorf("resume parent: %w", err)
	}
	if err := f.engine.skills.Revive(s, conv.ParamChangeHistory); err != nil {
		return fmt.Errorf("resume parent: %w", err)
	}
	conv.Skill = s
	f.logger().Debug("Parent conversation resumed", "skill", s.Type, "confirming", conv.Confirming)
	return nil
}

// collect asks the user for the next parameter. It reports false when
// nothing was asked because no parameter is left or the apply hook
// answered it.
func (f *Flow) collect(ctx context.Context) (bool, error) {
	conv := f.conv
	p, err := f.engine.resolver.Pop(ctx, f.turn())
	if err != nil {
		return false, err
	}
	if p == nil {
		return false, nil
	}

	conv.Confirming = p.Name
	if err := f.preact(ctx, p); err != nil {
		return false, err
	}

	if p.Apply != nil {
		v, err := p.Apply(ctx, f.bot, f.event, conv)
		if err != nil {
			return false, fmt.Errorf("apply of %s: %w", p.Name, err)
		}
		if v != nil {
			applied, err := f.ApplyParameter(ctx, p.Name, v, true)
			if err != nil {
				return false, err
			}
			if err := f.react(ctx, applied); err != nil {
				return false, err
			}
			// A rejected value falls back to asking.
			if applied == nil || applied.Err == nil {
				return false, nil
			}
		}
	}

	msgs, err := f.confirmMessages(ctx, p)
	if err != nil {
		return false, err
	}

	if conv.Flow == core.FlowPush {
		return true, f.bot.Send(ctx, f.event.ToID(), msgs, conv.SenderLanguage)
	}
	return true, f.bot.Reply(ctx, msgs...)
}

// confirmMessages picks the question for p. Platform specific messages
// come first, then the message func, then the generic messages.
func (f *Flow) confirmMessages(ctx context.Context, p *core.Parameter) ([]core.Message, error) {
	if msgs := p.PlatformMessage[f.bot.Type()]; len(msgs) > 0 {
		return msgs, nil
	}
	if p.MessageFunc != nil {
		msgs, err := p.MessageFunc(ctx, f.bot, f.event, f.conv)
		if err != nil {
			return nil, fmt.Errorf("message of %s: %w", p.Name, err)
		}
		if len(msgs) == 0 {
			return nil, fmt.Errorf("%w: message func of %s returned nothing", core.ErrMissingMessage, p.Name)
		}
		return msgs, nil
	}
	if len(p.Message) > 0 {
		return p.Message, nil
	}
	return nil, fmt.Errorf("%w: %s", core.ErrMissingMessage, p.Name)
}

// status writes a skill status audit record. Audit failures are logged and
// never abort the turn.
func (f *Flow) status(ctx context.Context, status string, intent *core.Intent) {
	err := f.engine.opts.Audit.SkillStatus(ctx, f.bot.ChannelID(), f.bot.SenderID(), f.conv.ChatID, f.conv.SkillName(), status, logging.StatusPayload{
		Context: f.conv,
		Intent:  intent,
	})
	if err != nil {
		f.logger().Warn("Skill status not logged", "status", status, "error", err)
	}
}

func (f *Flow) chat(ctx context.Context, who string, msg core.Message) {
	if err := f.engine.opts.Audit.Chat(ctx, f.bot.ChannelID(), f.bot.SenderID(), f.conv.ChatID, f.conv.SkillName(), who, msg); err != nil {
		f.logger().Warn("Chat not logged", "error", err)
	}
}

// hear records what the user sent.
func (f *Flow) hear(ctx context.Context) {
	msg := f.event.UserMessage()
	if msg == nil {
		return
	}
	f.conv.AddHistory("user", msg)
	f.chat(ctx, "user", msg)
}

// detectAndTranslate sets the sender language of text and returns text in
// the bot language.
func (f *Flow) detectAndTranslate(ctx context.Context, text string) (string, error) {
	t := f.engine.opts.Translator
	if t != nil && f.engine.opts.LangDetection {
		lang, err := t.Detect(ctx, text)
		if err != nil {
			return "", fmt.Errorf("detect language: %w", err)
		}
		f.conv.SenderLanguage = lang
	} else {
		f.conv.SenderLanguage = ""
	}
	return f.toBotLanguage(ctx, text)
}

// toBotLanguage translates text from the sender language when translation
// is enabled.
func (f *Flow) toBotLanguage(ctx context.Context, text string) (string, error) {
	t := f.engine.opts.Translator
	lang := f.conv.SenderLanguage
	if t == nil || !f.engine.opts.Translation || lang == "" || lang == f.engine.opts.Language {
		return text, nil
	}
	translated, err := t.Translate(ctx, text, f.engine.opts.Language)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	if translated == "" {
		return text, nil
	}
	f.conv.Translation = translated
	return translated, nil
}

func (f *Flow) mindState() mind.State {
	return mind.State{
		Conv:      f.conv,
		Parser:    &fitter{flow: f},
		SessionID: f.event.SessionID(),
		ChannelID: f.event.ChannelID,
	}
}

// fitter parses candidate values while the mind fits a payload to several
// parameters at once. Every call works on its own copy of the context with
// its own bot handle, so parse funcs see the conversation but their writes
// and queued messages are discarded.
type fitter struct {
	flow *Flow

	once     sync.Once
	snapshot []byte
	err      error
}

// ParseParameter implements mind.ParameterParser.
func (p *fitter) ParseParameter(ctx context.Context, name string, value any, strict bool) (any, error) {
	p.once.Do(func() { p.snapshot, p.err = p.flow.conv.Encode() })
	if p.err != nil {
		return nil, fmt.Errorf("snapshot context: %w", p.err)
	}
	conv, err := core.Decode(p.snapshot)
	if err != nil {
		return nil, fmt.Errorf("snapshot context: %w", err)
	}
	conv.Skill = p.flow.conv.Skill

	shadow := &Flow{engine: p.flow.engine, event: p.flow.event, conv: conv}
	shadow.bot = &Bot{flow: shadow}
	return shadow.ParseParameter(ctx, name, value, strict)
}

func (f *Flow) passThrough(ctx context.Context) error {
	url := f.engine.opts.PassThroughWebhook
	if url == "" {
		return nil
	}
	if err := f.engine.messenger.PassThrough(ctx, url, f.event); err != nil {
		return fmt.Errorf("pass through: %w", err)
	}
	return nil
}

// postbackData is the JSON form of engine postbacks:
//
//	{"_type":"intent","intent":{"name":"order"},"language":"en"}
//	{"_type":"process_parameters","parameters":{"size":"M"}}
type postbackData struct {
	Type       string         `json:"_type"`
	AltType    string         `json:"type"`
	Intent     *core.Intent   `json:"intent"`
	Language   string         `json:"language"`
	Parameters map[string]any `json:"parameters"`
}

func (p postbackData) is(kind string) bool { return p.Type == kind || p.AltType == kind }

func decodePostback(ev *core.Event) (postbackData, bool) {
	var p postbackData
	if ev.IdentifyEventType() != core.EventTypePostback {
		return p, false
	}
	if err := json.Unmarshal([]byte(ev.PostbackPayload()), &p); err != nil {
		return p, false
	}
	return p, true
}

// intentPostback decodes an intent postback. An intent postback without
// intent name is an error.
func intentPostback(ev *core.Event) (postbackData, bool, error) {
	p, ok := decodePostback(ev)
	if !ok || !p.is("intent") {
		return p, false, nil
	}
	if p.Intent == nil || p.Intent.Name == "" {
		return p, false, core.ErrInvalidIntentPostback
	}
	return p, true, nil
}

func processParametersPostback(ev *core.Event) (map[string]any, bool, error) {
	p, ok := decodePostback(ev)
	if !ok || !p.is("process_parameters") {
		return nil, false, nil
	}
	if p.Parameters == nil {
		return nil, false, core.ErrInvalidProcessParametersPostback
	}
	return p.Parameters, true, nil
}

func removeName(names []string, name string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

func prependName(names []string, name string) []string {
	return append([]string{name}, names...)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	}
	return false
}

// hasPendingElements reports whether input still holds array values for
// any of the collected sub-parameters.
func hasPendingElements(input, collected map[string]any) bool {
	for name := range collected {
		if arr, ok := input[name].([]any); ok && len(arr) > 0 {
			return true
		}
	}
	return false
}
