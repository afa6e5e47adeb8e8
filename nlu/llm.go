package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/botmesh/core"
	"github.com/hupe1980/botmesh/internal/util"
	"github.com/hupe1980/botmesh/logging"
	"github.com/hupe1980/botmesh/model"
)

// IntentSpec describes an intent to the language model.
type IntentSpec struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Examples    []string `yaml:"examples,omitempty" json:"examples,omitempty"`
	// Parameters lists the parameter names the model may extract.
	Parameters []string `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// LLMOptions configures an LLM classifier.
type LLMOptions struct {
	DefaultIntent string
	Logger        logging.Logger
}

// LLM classifies sentences with a language model. The model is asked for a
// JSON object naming one of the configured intents and the answer is checked
// against the same JSON schema.
type LLM struct {
	model   model.Model
	intents []IntentSpec
	schema  map[string]any
	opts    LLMOptions
}

var _ core.IntentClassifier = (*LLM)(nil)

// NewLLM creates an LLM classifier for intents.
func NewLLM(m model.Model, intents []IntentSpec, optFns ...func(o *LLMOptions)) *LLM {
	opts := LLMOptions{
		DefaultIntent: "input.unknown",
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	names := make([]string, 0, len(intents)+1)
	for _, s := range intents {
		names = append(names, s.Name)
	}
	names = append(names, opts.DefaultIntent)
	schema := util.CreateSchema(llmAnswer{})
	util.SetEnum(schema, "intent", names...)

	return &LLM{model: m, intents: intents, schema: schema, opts: opts}
}

type llmAnswer struct {
	Intent     string         `json:"intent" description:"name of the matching intent"`
	Parameters map[string]any `json:"parameters,omitempty" description:"values of the intent parameters found in the message"`
}

// IdentifyIntent implements core.IntentClassifier. Answers naming an
// unknown intent map to the default intent.
func (c *LLM) IdentifyIntent(ctx context.Context, text string, opts core.IntentOptions) (core.Intent, error) {
	out, err := model.Complete(ctx, c.model, model.UserRequest(c.instructions(opts.Language), text))
	if err != nil {
		return core.Intent{}, fmt.Errorf("classify intent: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(extractJSON(out)), &doc); err != nil {
		c.opts.Logger.Warn("Unparsable classifier answer", "answer", out, "error", err)
		return core.Intent{Name: c.opts.DefaultIntent}, nil
	}
	if err := util.ValidateDocument(doc, c.schema); err != nil {
		c.opts.Logger.Debug("Classifier answer rejected", "answer", out, "error", err)
		return core.Intent{Name: c.opts.DefaultIntent}, nil
	}
	var answer llmAnswer
	answer.Intent, _ = doc["intent"].(string)
	answer.Parameters, _ = doc["parameters"].(map[string]any)

	def, ok := c.lookup(answer.Intent)
	if !ok {
		return core.Intent{Name: c.opts.DefaultIntent}, nil
	}

	intent := core.Intent{Name: def.Name, Parameters: map[string]any{}}
	for _, name := range def.Parameters {
		if v, ok := answer.Parameters[name]; ok && v != nil {
			intent.Parameters[name] = v
		}
	}
	return intent, nil
}

func (c *LLM) lookup(name string) (IntentSpec, bool) {
	for _, s := range c.intents {
		if s.Name == name {
			return s, true
		}
	}
	return IntentSpec{}, false
}

func (c *LLM) instructions(language string) string {
	var b strings.Builder
	b.WriteString("You classify the intent of a chat message sent to a bot.\n")
	schema, _ := json.Marshal(c.schema)
	fmt.Fprintf(&b, "Answer with a single JSON object matching this JSON schema and nothing else: %s\n", schema)
	fmt.Fprintf(&b, "Use %q when no intent fits.\n", c.opts.DefaultIntent)
	if language != "" {
		fmt.Fprintf(&b, "The message is written in language %q.\n", language)
	}
	b.WriteString("\nIntents:\n")
	for _, s := range c.intents {
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
		if len(s.Parameters) > 0 {
			fmt.Fprintf(&b, "  parameters: %s\n", strings.Join(s.Parameters, ", "))
		}
		for _, ex := range s.Examples {
			fmt.Fprintf(&b, "  example: %s\n", ex)
		}
	}
	return b.String()
}

// extractJSON strips code fences and surrounding prose from a model answer.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
