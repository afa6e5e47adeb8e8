// Package translator implements core.Translator on top of a language model.
package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/hupe1980/botmesh/core"
	"github.com/hupe1980/botmesh/logging"
	"github.com/hupe1980/botmesh/model"
)

// ErrUnknownLanguage is returned when the model answers with something that
// is not a language code.
var ErrUnknownLanguage = errors.New("unknown language")

const (
	detectInstructions = "Identify the language of the user's message. " +
		"Answer with the ISO 639-1 code only, for example en or ja."
	translateInstructions = "Translate the user's message into the language with ISO 639-1 code %q. " +
		"Answer with the translation only."
)

// Options configures a Translator.
type Options struct {
	// Fallback is reported by Detect when the model answer is not a
	// language code. Empty makes Detect fail instead.
	Fallback string
	Logger   logging.Logger
}

// Translator detects and translates text with a language model.
type Translator struct {
	model model.Model
	opts  Options
}

var _ core.Translator = (*Translator)(nil)

// New creates a Translator.
func New(m model.Model, optFns ...func(o *Options)) *Translator {
	opts := Options{
		Fallback: "ja",
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Translator{model: m, opts: opts}
}

// Detect implements core.Translator. The answer is normalised to the base
// ISO 639-1 code ("en-US" becomes "en").
func (t *Translator) Detect(ctx context.Context, text string) (string, error) {
	out, err := model.Complete(ctx, t.model, model.UserRequest(detectInstructions, text))
	if err != nil {
		return "", fmt.Errorf("detect language: %w", err)
	}
	code, err := Normalize(out)
	if err != nil {
		if t.opts.Fallback == "" {
			return "", err
		}
		t.opts.Logger.Warn("Language not detected, using fallback", "answer", out, "fallback", t.opts.Fallback)
		return t.opts.Fallback, nil
	}
	return code, nil
}

// Translate implements core.Translator.
func (t *Translator) Translate(ctx context.Context, text, lang string) (string, error) {
	code, err := Normalize(lang)
	if err != nil {
		return "", err
	}
	out, err := model.Complete(ctx, t.model, model.UserRequest(fmt.Sprintf(translateInstructions, code), text))
	if err != nil {
		return "", fmt.Errorf("translate to %s: %w", code, err)
	}
	return out, nil
}

// Normalize parses a BCP 47 tag and returns its base language.
func Normalize(s string) (string, error) {
	s = strings.Trim(strings.TrimSpace(s), `."'`)
	tag, err := language.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, s)
	}
	base, conf := tag.Base()
	if conf == language.No {
		return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, s)
	}
	return base.String(), nil
}
