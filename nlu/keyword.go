package nlu

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/botmesh/core"
)

// KeywordRule maps keywords and patterns to an intent. Named groups of a
// matching pattern become intent parameters.
type KeywordRule struct {
	Intent      string         `yaml:"intent"`
	Keywords    []string       `yaml:"keywords,omitempty"`
	Patterns    []string       `yaml:"patterns,omitempty"`
	Parameters  map[string]any `yaml:"parameters,omitempty"`
	Fulfillment []core.Message `yaml:"fulfillment,omitempty"`
}

// KeywordConfig is the YAML document read by LoadKeyword.
type KeywordConfig struct {
	DefaultIntent string         `yaml:"default_intent,omitempty"`
	Fallback      []core.Message `yaml:"fallback,omitempty"`
	Rules         []KeywordRule  `yaml:"rules"`
}

type compiledRule struct {
	KeywordRule
	keywords []string
	patterns []*regexp.Regexp
}

// Keyword classifies by keyword and regular expression. Rules are tried in
// declaration order and the first match wins. Matching ignores case and
// full-width/half-width differences.
type Keyword struct {
	defaultIntent string
	fallback      []core.Message
	rules         []compiledRule
}

var _ core.IntentClassifier = (*Keyword)(nil)

// NewKeyword compiles cfg.
func NewKeyword(cfg KeywordConfig) (*Keyword, error) {
	k := &Keyword{defaultIntent: cfg.DefaultIntent, fallback: cfg.Fallback}
	if k.defaultIntent == "" {
		k.defaultIntent = "input.unknown"
	}
	for i, r := range cfg.Rules {
		if r.Intent == "" {
			return nil, fmt.Errorf("rule %d: intent is required", i)
		}
		cr := compiledRule{KeywordRule: r}
		for _, kw := range r.Keywords {
			cr.keywords = append(cr.keywords, normalize(kw))
		}
		for _, p := range r.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", r.Intent, err)
			}
			cr.patterns = append(cr.patterns, re)
		}
		k.rules = append(k.rules, cr)
	}
	return k, nil
}

// ParseKeyword reads a KeywordConfig from YAML.
func ParseKeyword(b []byte) (*Keyword, error) {
	var cfg KeywordConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse keyword rules: %w", err)
	}
	return NewKeyword(cfg)
}

// LoadKeyword reads a KeywordConfig from a YAML file.
func LoadKeyword(path string) (*Keyword, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword rules: %w", err)
	}
	return ParseKeyword(b)
}

// IdentifyIntent implements core.IntentClassifier.
func (k *Keyword) IdentifyIntent(_ context.Context, text string, _ core.IntentOptions) (core.Intent, error) {
	folded := foldWidth(text)
	normalized := normalize(text)
	for _, r := range k.rules {
		if params, ok := r.match(folded, normalized); ok {
			return core.Intent{Name: r.Intent, Parameters: params, Fulfillment: r.Fulfillment}, nil
		}
	}
	return core.Intent{Name: k.defaultIntent, Fulfillment: k.fallback}, nil
}

// match tries the patterns on the width-folded text, keeping the case of
// captured values, and the keywords on the fully normalised text.
func (r compiledRule) match(folded, normalized string) (map[string]any, bool) {
	params := map[string]any{}
	for k, v := range r.Parameters {
		params[k] = v
	}

	for _, re := range r.patterns {
		m := re.FindStringSubmatch(folded)
		if m == nil {
			continue
		}
		for i, name := range re.SubexpNames() {
			if name != "" && m[i] != "" {
				params[name] = m[i]
			}
		}
		return params, true
	}
	for _, kw := range r.keywords {
		if strings.Contains(normalized, kw) {
			return params, true
		}
	}
	return nil, false
}

// foldWidth maps full-width ASCII to half-width and half-width katakana to
// composed full-width katakana.
func foldWidth(s string) string {
	return norm.NFC.String(width.Fold.String(s))
}

func normalize(s string) string {
	return strings.TrimSpace(cases.Fold().String(foldWidth(s)))
}
