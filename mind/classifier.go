package mind

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/botmesh/core"
	"github.com/hupe1980/botmesh/logging"
)

// Result names the interpretation of an utterance.
type Result string

const (
	ModifyPreviousParameter Result = "modify_previous_parameter"
	RestartConversation     Result = "restart_conversation"
	ChangeIntent            Result = "change_intent"
	Dig                     Result = "dig"
	ChangeParameter         Result = "change_parameter"
	NoIdea                  Result = "no_idea"
)

// Parameter is the parameter a change_parameter mind applies to.
type Parameter struct {
	Name  string
	Value any
}

// Mind is the outcome of Identify.
type Mind struct {
	Result    Result
	Intent    core.Intent
	Parameter *Parameter
	Payload   any
	// Ambiguous lists every parameter the payload fitted when more than one
	// did. The first declared one is chosen.
	Ambiguous []string
}

// ParameterParser validates a value against a parameter of the active
// skill. In strict mode a parameter without parser rejects every value.
// Fitting calls it concurrently, once per candidate parameter.
type ParameterParser interface {
	ParseParameter(ctx context.Context, name string, value any, strict bool) (any, error)
}

// SkillChecker reports whether a skill is registered for an intent.
type SkillChecker interface {
	Has(name string) bool
}

// State is the conversation the payload is interpreted against.
type State struct {
	Conv      *core.Context
	Parser    ParameterParser
	SessionID string
	ChannelID string
}

// Options configures a Classifier.
type Options struct {
	DefaultIntent                 string
	ModifyPreviousParameterIntent string
	Logger                        logging.Logger
}

// Classifier identifies the mind of the user.
type Classifier struct {
	nlu    core.IntentClassifier
	skills SkillChecker
	opts   Options
}

// New creates a Classifier.
func New(nlu core.IntentClassifier, skills SkillChecker, optFns ...func(o *Options)) *Classifier {
	opts := Options{
		DefaultIntent: "input.unknown",
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Classifier{nlu: nlu, skills: skills, opts: opts}
}

// Identify classifies payload. Text payloads are sent to the intent
// classifier; postback objects are only inspected for intent postbacks.
//
// When the text fits several parameters the first declared one wins
// (required parameters before optional ones) and the other candidates are
// reported in Mind.Ambiguous.
func (c *Classifier) Identify(ctx context.Context, payload any, st State) (Mind, error) {
	conv := st.Conv

	if intent, ok, err := intentPostback(payload); err != nil {
		return Mind{}, err
	} else if ok {
		switch {
		case c.opts.ModifyPreviousParameterIntent != "" && intent.Name == c.opts.ModifyPreviousParameterIntent:
			return Mind{Result: ModifyPreviousParameter, Intent: intent, Payload: payload}, nil
		case intent.Name == conv.Intent.Name:
			return Mind{Result: RestartConversation, Intent: intent, Payload: payload}, nil
		default:
			return Mind{Result: ChangeIntent, Intent: intent, Payload: payload}, nil
		}
	}

	text, ok := payload.(string)
	if !ok {
		return Mind{Result: NoIdea, Intent: core.Intent{Name: c.opts.DefaultIntent}}, nil
	}

	start := time.Now()
	intent, err := c.nlu.IdentifyIntent(ctx, text, core.IntentOptions{
		SessionID: st.SessionID,
		ChannelID: st.ChannelID,
		Language:  conv.SenderLanguage,
	})
	logging.LogClassification(c.opts.Logger, intent.Name, time.Since(start), err)
	if err != nil {
		return Mind{}, fmt.Errorf("identify intent: %w", err)
	}

	if c.opts.ModifyPreviousParameterIntent != "" && intent.Name == c.opts.ModifyPreviousParameterIntent {
		return Mind{Result: ModifyPreviousParameter, Intent: intent, Payload: payload}, nil
	}

	if intent.Name != c.opts.DefaultIntent {
		if !c.skills.Has(intent.Name) {
			c.opts.Logger.Debug("No skill for intent", "intent", intent.Name)
			return Mind{Result: NoIdea, Intent: conv.Intent}, nil
		}
		if conv.Flow == core.FlowReply && conv.Confirming != "" {
			if p, _ := conv.Skill.Lookup(conv, conv.Confirming); p != nil && p.HasSubSkill(intent.Name) {
				return Mind{Result: Dig, Intent: intent, Payload: payload}, nil
			}
		}
		if intent.Name == conv.Intent.Name {
			return Mind{Result: RestartConversation, Intent: intent, Payload: payload}, nil
		}
		return Mind{Result: ChangeIntent, Intent: intent, Payload: payload}, nil
	}

	if conv.Flow == core.FlowReply {
		return Mind{Result: NoIdea, Intent: intent}, nil
	}

	fits, err := c.fit(ctx, text, st)
	if err != nil {
		return Mind{}, err
	}
	if len(fits) == 0 {
		return Mind{Result: NoIdea, Intent: intent}, nil
	}

	m := Mind{Result: ChangeParameter, Intent: intent, Payload: payload, Parameter: &fits[0]}
	if len(fits) > 1 {
		for _, f := range fits {
			m.Ambiguous = append(m.Ambiguous, f.Name)
		}
		c.opts.Logger.Info("Payload fits several parameters", "chosen", fits[0].Name, "candidates", m.Ambiguous)
	}
	return m, nil
}

// fit parses text against every required and optional parameter except the
// one being confirmed. Results keep declaration order.
func (c *Classifier) fit(ctx context.Context, text string, st State) ([]Parameter, error) {
	conv := st.Conv
	if conv.Skill == nil || st.Parser == nil {
		return nil, nil
	}

	var names []string
	for _, t := range []core.ParameterType{core.RequiredParameter, core.OptionalParameter} {
		for _, p := range conv.Skill.Parameters(t) {
			if p.Name != conv.Confirming {
				names = append(names, p.Name)
			}
		}
	}

	results := make([]*Parameter, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			v, err := st.Parser.ParseParameter(gctx, name, text, true)
			if err != nil {
				if errors.Is(err, core.ErrRejected) {
					return nil
				}
				return fmt.Errorf("fit %s: %w", name, err)
			}
			results[i] = &Parameter{Name: name, Value: v}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var fits []Parameter
	for _, r := range results {
		if r != nil {
			fits = append(fits, *r)
		}
	}
	return fits, nil
}

// intentPostback recognises {"data": "{\"_type\":\"intent\",\"intent\":{...}}"}.
// The type key is accepted without underscore as well.
func intentPostback(payload any) (core.Intent, bool, error) {
	m, ok := payload.(map[string]any)
	if !ok {
		return core.Intent{}, false, nil
	}
	data, ok := m["data"].(string)
	if !ok || data == "" {
		return core.Intent{}, false, nil
	}

	var parsed struct {
		Type    string       `json:"_type"`
		AltType string       `json:"type"`
		Intent  *core.Intent `json:"intent"`
	}
	if err := json.Unmarshal([]byte(data), &parsed); err != nil || (parsed.Type != "intent" && parsed.AltType != "intent") {
		return core.Intent{}, false, nil
	}
	if parsed.Intent == nil || parsed.Intent.Name == "" {
		return core.Intent{}, false, core.ErrInvalidIntentPostback
	}
	return *parsed.Intent, true, nil
}
