// Package config loads the YAML configuration of a botmesh deployment.
// Values may reference environment variables as ${NAME}; they are expanded
// before the document is parsed.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/botmesh/logging"
	"github.com/hupe1980/botmesh/messenger/line"
	"github.com/hupe1980/botmesh/messenger/mqtt"
	"github.com/hupe1980/botmesh/nlu"
	"github.com/hupe1980/botmesh/scheduler"
)

// Config is the root document.
type Config struct {
	Server     Server               `yaml:"server"`
	Log        Log                  `yaml:"log"`
	Bot        Bot                  `yaml:"bot"`
	Messenger  Messenger            `yaml:"messenger"`
	NLU        NLU                  `yaml:"nlu"`
	Translator Translator           `yaml:"translator"`
	Memory     Memory               `yaml:"memory"`
	Skills     Skills               `yaml:"skills"`
	Schedules  []scheduler.Schedule `yaml:"schedules,omitempty"`
	Monitor    Monitor              `yaml:"monitor"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr            string        `yaml:"addr"`
	WebhookPath     string        `yaml:"webhook_path"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Log configures the application and audit loggers.
type Log struct {
	Level string `yaml:"level"`
	// Format is text, json or zap.
	Format string `yaml:"format"`
	// Exclude drops audit records: skill-status and/or chat.
	Exclude []string `yaml:"exclude,omitempty"`
}

// Bot holds conversation behaviour.
type Bot struct {
	Language                      string `yaml:"language"`
	DefaultIntent                 string `yaml:"default_intent"`
	DefaultSkill                  string `yaml:"default_skill"`
	ModifyPreviousParameterIntent string `yaml:"modify_previous_parameter_intent,omitempty"`
	// ParallelEvent is ignore or allow.
	ParallelEvent      string `yaml:"parallel_event"`
	StrictLock         bool   `yaml:"strict_lock,omitempty"`
	PassThroughWebhook string `yaml:"pass_through_webhook,omitempty"`
	// BeaconSkills maps enter/leave to skills.
	BeaconSkills map[string]string `yaml:"beacon_skills,omitempty"`
	// ActiveEventSkills maps follow/unfollow/join/leave to skills.
	ActiveEventSkills map[string]string `yaml:"active_event_skills,omitempty"`
}

// Messenger selects the platform adapter.
type Messenger struct {
	// Type is line or mqtt.
	Type string `yaml:"type"`
	Line Line   `yaml:"line,omitempty"`
	MQTT MQTT   `yaml:"mqtt,omitempty"`
}

// Line configures messenger/line.
type Line struct {
	Channels          []line.Channel `yaml:"channels"`
	Endpoint          string         `yaml:"endpoint,omitempty"`
	PassThroughSecret string         `yaml:"pass_through_secret,omitempty"`
}

// MQTT configures messenger/mqtt.
type MQTT struct {
	mqtt.BrokerOptions `yaml:",inline"`

	InTopic   string `yaml:"in_topic,omitempty"`
	OutTopic  string `yaml:"out_topic,omitempty"`
	ChannelID string `yaml:"channel_id,omitempty"`
}

// Model selects a language model.
type Model struct {
	// Provider is openai, anthropic, gemini or mock.
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name,omitempty"`
	APIKey      string  `yaml:"api_key,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
}

// NLU lists the intent classifiers. With more than one agent each needs a
// channel id.
type NLU struct {
	Agents []Agent `yaml:"agents"`
}

// Agent is one intent classifier.
type Agent struct {
	ChannelID string `yaml:"channel_id,omitempty"`
	// Type is llm or keyword.
	Type    string           `yaml:"type"`
	Model   Model            `yaml:"model,omitempty"`
	Intents []nlu.IntentSpec `yaml:"intents,omitempty"`
	// Rules is the keyword rule file, relative to the config file.
	Rules string `yaml:"rules,omitempty"`
}

// Translator configures language detection and translation.
type Translator struct {
	Enabled       bool  `yaml:"enabled"`
	Model         Model `yaml:"model,omitempty"`
	LangDetection *bool `yaml:"enable_lang_detection,omitempty"`
	Translation   bool  `yaml:"enable_translation,omitempty"`
}

// Memory selects the context store backend.
type Memory struct {
	// Type is memory, bolt or sqlite.
	Type      string        `yaml:"type"`
	Path      string        `yaml:"path,omitempty"`
	Retention time.Duration `yaml:"retention"`
}

// Skills points at the skill descriptors.
type Skills struct {
	Dir string `yaml:"dir"`
}

// Monitor configures the websocket audit feed.
type Monitor struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Backlog int    `yaml:"backlog,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads, expands, parses and validates the file at path. Relative
// paths inside the document are resolved against the file's directory.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	c.resolvePaths(filepath.Dir(path))
	return c, nil
}

// Parse expands environment variables in b and decodes it.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.Server.Addr, ":8080")
	setDefault(&c.Server.WebhookPath, "/webhook")
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	setDefault(&c.Log.Level, "info")
	setDefault(&c.Log.Format, "text")

	setDefault(&c.Bot.Language, "ja")
	setDefault(&c.Bot.DefaultIntent, "input.unknown")
	setDefault(&c.Bot.DefaultSkill, "builtin_default")
	setDefault(&c.Bot.ParallelEvent, "ignore")

	setDefault(&c.Messenger.Type, "line")

	if c.Translator.LangDetection == nil {
		enabled := true
		c.Translator.LangDetection = &enabled
	}

	setDefault(&c.Memory.Type, "memory")
	if c.Memory.Retention <= 0 {
		c.Memory.Retention = 600 * time.Second
	}

	setDefault(&c.Monitor.Path, "/monitor")
}

func setDefault(s *string, v string) {
	if *s == "" {
		*s = v
	}
}

func (c *Config) resolvePaths(base string) {
	abs := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	abs(&c.Skills.Dir)
	if c.Memory.Type != "memory" {
		abs(&c.Memory.Path)
	}
	for i := range c.NLU.Agents {
		abs(&c.NLU.Agents[i].Rules)
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	switch c.Bot.ParallelEvent {
	case "ignore", "allow":
	default:
		errs = append(errs, fmt.Errorf("bot.parallel_event: unknown value %q", c.Bot.ParallelEvent))
	}

	switch c.Log.Format {
	case "text", "json", "zap":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown value %q", c.Log.Format))
	}
	for _, e := range c.Log.Exclude {
		if e != logging.ExcludeSkillStatus && e != logging.ExcludeChat {
			errs = append(errs, fmt.Errorf("log.exclude: unknown value %q", e))
		}
	}

	switch c.Messenger.Type {
	case "line":
		if len(c.Messenger.Line.Channels) == 0 {
			errs = append(errs, errors.New("messenger.line.channels: at least one channel is required"))
		}
	case "mqtt":
		if c.Messenger.MQTT.Broker == "" {
			errs = append(errs, errors.New("messenger.mqtt.broker is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("messenger.type: unknown value %q", c.Messenger.Type))
	}

	if len(c.NLU.Agents) == 0 {
		errs = append(errs, errors.New("nlu.agents: at least one agent is required"))
	}
	for i, a := range c.NLU.Agents {
		if len(c.NLU.Agents) > 1 && a.ChannelID == "" {
			errs = append(errs, fmt.Errorf("nlu.agents[%d].channel_id is required with several agents", i))
		}
		switch a.Type {
		case "llm":
			if a.Model.Provider == "" {
				errs = append(errs, fmt.Errorf("nlu.agents[%d].model.provider is required", i))
			}
		case "keyword":
			if a.Rules == "" {
				errs = append(errs, fmt.Errorf("nlu.agents[%d].rules is required", i))
			}
		default:
			errs = append(errs, fmt.Errorf("nlu.agents[%d].type: unknown value %q", i, a.Type))
		}
	}

	if c.Translator.Enabled && c.Translator.Model.Provider == "" {
		errs = append(errs, errors.New("translator.model.provider is required"))
	}

	switch c.Memory.Type {
	case "memory":
	case "bolt", "sqlite":
		if c.Memory.Path == "" {
			errs = append(errs, fmt.Errorf("memory.path is required for %s", c.Memory.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("memory.type: unknown value %q", c.Memory.Type))
	}

	return errors.Join(errs...)
}
