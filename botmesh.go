// Package botmesh assembles a complete conversation service from a
// config.Config: messenger, intent classifiers, translator, context store,
// skills, dispatcher, monitor and scheduler. Most applications:
//  1. Load a configuration with config.Load
//  2. Register Go hook functions on a skill.Registry
//  3. Create an App with New and call Run
//
// Every collaborator New creates is owned by the App and released by Close
// in reverse order of creation.
package botmesh

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/botmesh/config"
	"github.com/hupe1980/botmesh/core"
	"github.com/hupe1980/botmesh/flow"
	"github.com/hupe1980/botmesh/logging"
	"github.com/hupe1980/botmesh/memory"
	"github.com/hupe1980/botmesh/memory/bolt"
	"github.com/hupe1980/botmesh/memory/sqlite"
	"github.com/hupe1980/botmesh/messenger/line"
	"github.com/hupe1980/botmesh/messenger/mqtt"
	"github.com/hupe1980/botmesh/model"
	"github.com/hupe1980/botmesh/model/anthropic"
	"github.com/hupe1980/botmesh/model/gemini"
	"github.com/hupe1980/botmesh/model/openai"
	"github.com/hupe1980/botmesh/monitor"
	"github.com/hupe1980/botmesh/nlu"
	"github.com/hupe1980/botmesh/parser"
	"github.com/hupe1980/botmesh/scheduler"
	"github.com/hupe1980/botmesh/skill"
	"github.com/hupe1980/botmesh/translator"
	"github.com/hupe1980/botmesh/webhook"
)

// Options overrides parts of what New builds from the configuration.
type Options struct {
	// Skills receives the descriptors of the configured skills directory.
	// Register hook functions on it before calling New.
	Skills *skill.Registry
	// Parsers defaults to the built-in parser registry.
	Parsers *parser.Registry
	// Messenger replaces the configured messenger.
	Messenger core.Messenger
	// Classifier replaces the configured NLU agents.
	Classifier core.IntentClassifier
	// Models resolves model names for the "mock" provider and overrides
	// configured providers by name.
	Models map[string]model.Model
	// Logger replaces the logger built from the log section.
	Logger logging.Logger
}

// App is a wired conversation service.
type App struct {
	Config     *config.Config
	Logger     logging.Logger
	Skills     *skill.Registry
	Memory     *memory.Memory
	Engine     *flow.Engine
	Dispatcher *webhook.Dispatcher
	Monitor    *monitor.Hub
	Scheduler  *scheduler.Scheduler

	mqtt    *mqtt.Messenger
	closers []func() error
}

// New builds an App. On error every collaborator created so far is closed.
func New(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (app *App, err error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err := a.buildLogger(opts); err != nil {
		return nil, err
	}

	audit := a.buildAudit()

	a.Skills = opts.Skills
	if a.Skills == nil {
		a.Skills = skill.New(func(o *skill.Options) { o.Logger = logging.With(a.Logger, "component", "skill") })
	}
	if cfg.Skills.Dir != "" {
		types, err := a.Skills.LoadDir(cfg.Skills.Dir)
		if err != nil {
			return nil, fmt.Errorf("load skills: %w", err)
		}
		a.Logger.Info("Skills loaded", "dir", cfg.Skills.Dir, "skills", types)
	}

	backend, err := a.buildBackend(ctx)
	if err != nil {
		return nil, err
	}
	a.Memory = memory.New(backend, func(o *memory.Options) {
		o.Retention = cfg.Memory.Retention
		o.Skills = a.Skills
		o.Audit = audit
		o.Logger = logging.With(a.Logger, "component", "memory")
	})
	a.closers = append(a.closers, a.Memory.Close)

	messenger, err := a.buildMessenger(opts)
	if err != nil {
		return nil, err
	}

	classifier := opts.Classifier
	if classifier == nil {
		if classifier, err = a.buildClassifier(ctx, opts); err != nil {
			return nil, err
		}
	}

	var tr core.Translator
	if cfg.Translator.Enabled {
		m, err := a.buildModel(ctx, cfg.Translator.Model, opts)
		if err != nil {
			return nil, fmt.Errorf("translator: %w", err)
		}
		tr = translator.New(m, func(o *translator.Options) {
			o.Fallback = cfg.Bot.Language
			o.Logger = logging.With(a.Logger, "component", "translator")
		})
	}

	parsers := opts.Parsers
	if parsers == nil {
		parsers = parser.NewRegistry()
	}
	a.Engine = flow.NewEngine(messenger, classifier, a.Skills, func(o *flow.Options) {
		o.Translator = tr
		o.LangDetection = tr != nil && *cfg.Translator.LangDetection
		o.Translation = tr != nil && cfg.Translator.Translation
		o.Parsers = parsers
		o.Audit = audit
		o.Logger = logging.With(a.Logger, "component", "flow")
		o.Language = cfg.Bot.Language
		o.DefaultIntent = cfg.Bot.DefaultIntent
		o.DefaultSkill = cfg.Bot.DefaultSkill
		o.ModifyPreviousParameterIntent = cfg.Bot.ModifyPreviousParameterIntent
		o.PassThroughWebhook = cfg.Bot.PassThroughWebhook
	})

	a.Dispatcher = webhook.New(a.Engine, a.Memory, func(o *webhook.Options) {
		o.ParallelEvent = webhook.ParallelEvent(cfg.Bot.ParallelEvent)
		o.StrictLock = cfg.Bot.StrictLock
		if cfg.Bot.BeaconSkills != nil {
			o.BeaconSkills = cfg.Bot.BeaconSkills
		}
		if cfg.Bot.ActiveEventSkills != nil {
			o.ActiveEventSkills = cfg.Bot.ActiveEventSkills
		}
		o.Audit = audit
		o.Logger = logging.With(a.Logger, "component", "webhook")
	})

	if len(cfg.Schedules) > 0 {
		a.Scheduler, err = scheduler.New(a.Dispatcher, cfg.Schedules, func(o *scheduler.Options) {
			o.Logger = logging.With(a.Logger, "component", "scheduler")
		})
		if err != nil {
			return nil, err
		}
	}

	return a, nil
}

func (a *App) buildLogger(opts Options) error {
	if opts.Logger != nil {
		a.Logger = opts.Logger
		return nil
	}
	if a.Config.Log.Format == "zap" {
		z, sync, err := logging.NewZapProduction()
		if err != nil {
			return fmt.Errorf("zap logger: %w", err)
		}
		a.Logger = z
		a.closers = append(a.closers, func() error {
			// Syncing stderr fails on some platforms; nothing is lost.
			_ = sync()
			return nil
		})
		return nil
	}
	a.Logger = logging.NewSlogLogger(logging.ParseLevel(a.Config.Log.Level), a.Config.Log.Format, false)
	return nil
}

func (a *App) buildAudit() logging.SkillLogger {
	sinks := logging.MultiSink{logging.NewSlogSink(a.Logger)}
	if a.Config.Monitor.Enabled {
		a.Monitor = monitor.New(func(o *monitor.Options) {
			if a.Config.Monitor.Backlog > 0 {
				o.Backlog = a.Config.Monitor.Backlog
			}
			o.Logger = logging.With(a.Logger, "component", "monitor")
		})
		a.closers = append(a.closers, a.Monitor.Close)
		sinks = append(sinks, a.Monitor)
	}
	return logging.NewAuditLogger(sinks, a.Config.Log.Exclude...)
}

func (a *App) buildMessenger(opts Options) (core.Messenger, error) {
	if opts.Messenger != nil {
		return opts.Messenger, nil
	}
	mc := a.Config.Messenger
	switch mc.Type {
	case "line":
		return line.New(mc.Line.Channels, func(o *line.Options) {
			if mc.Line.Endpoint != "" {
				o.Endpoint = mc.Line.Endpoint
			}
			o.PassThroughSecret = mc.Line.PassThroughSecret
			o.Logger = logging.With(a.Logger, "component", "line")
		})
	case "mqtt":
		transport, err := mqtt.Dial(mc.MQTT.BrokerOptions, a.Logger)
		if err != nil {
			return nil, err
		}
		a.mqtt = mqtt.New(transport, func(o *mqtt.Options) {
			if mc.MQTT.InTopic != "" {
				o.InTopic = mc.MQTT.InTopic
			}
			if mc.MQTT.OutTopic != "" {
				o.OutTopic = mc.MQTT.OutTopic
			}
			o.ChannelID = mc.MQTT.ChannelID
			o.Logger = logging.With(a.Logger, "component", "mqtt")
		})
		a.closers = append(a.closers, a.mqtt.Close)
		return a.mqtt, nil
	}
	return nil, fmt.Errorf("unknown messenger type %q", mc.Type)
}

func (a *App) buildClassifier(ctx context.Context, opts Options) (core.IntentClassifier, error) {
	agents := make([]nlu.Agent, 0, len(a.Config.NLU.Agents))
	for i, ac := range a.Config.NLU.Agents {
		var c core.IntentClassifier
		switch ac.Type {
		case "llm":
			m, err := a.buildModel(ctx, ac.Model, opts)
			if err != nil {
				return nil, fmt.Errorf("nlu agent %d: %w", i, err)
			}
			c = nlu.NewLLM(m, ac.Intents, func(o *nlu.LLMOptions) {
				o.DefaultIntent = a.Config.Bot.DefaultIntent
				o.Logger = logging.With(a.Logger, "component", "nlu")
			})
		case "keyword":
			k, err := nlu.LoadKeyword(ac.Rules)
			if err != nil {
				return nil, fmt.Errorf("nlu agent %d: %w", i, err)
			}
			c = k
		default:
			return nil, fmt.Errorf("nlu agent %d: unknown type %q", i, ac.Type)
		}
		agents = append(agents, nlu.Agent{ChannelID: ac.ChannelID, Classifier: c})
	}
	return nlu.NewRouter(agents...)
}

func (a *App) buildModel(ctx context.Context, mc config.Model, opts Options) (model.Model, error) {
	if m, ok := opts.Models[mc.Name]; ok {
		return m, nil
	}
	switch mc.Provider {
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if mc.Name != "" {
				o.Model = mc.Name
			}
			o.Temperature = mc.Temperature
			o.APIKey = mc.APIKey
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if mc.Name != "" {
				o.Model = anthropicsdk.Model(mc.Name)
			}
			o.Temperature = mc.Temperature
			o.APIKey = mc.APIKey
		}), nil
	case "gemini":
		key := mc.APIKey
		if key == "" {
			key = os.Getenv("GEMINI_API_KEY")
		}
		return gemini.NewModel(ctx, key, func(o *gemini.Options) {
			if mc.Name != "" {
				o.Model = mc.Name
			}
			o.Temperature = float32(mc.Temperature)
		})
	case "mock":
		return model.NewMockModel(mc.Name), nil
	}
	return nil, fmt.Errorf("unknown model provider %q", mc.Provider)
}

func (a *App) buildBackend(ctx context.Context) (memory.Backend, error) {
	mc := a.Config.Memory
	switch mc.Type {
	case "memory":
		return memory.NewInMemoryBackend(), nil
	case "bolt":
		return bolt.Open(mc.Path, func(o *bolt.Options) { o.Logger = a.Logger })
	case "sqlite":
		return sqlite.Open(ctx, mc.Path, func(o *sqlite.Options) { o.Logger = a.Logger })
	}
	return nil, fmt.Errorf("unknown memory type %q", mc.Type)
}

// Handler returns the HTTP surface: the webhook and, when enabled, the
// monitor feed.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(a.Config.Server.WebhookPath, webhook.NewHandler(a.Dispatcher))
	if a.Monitor != nil {
		mux.Handle(a.Config.Monitor.Path, a.Monitor)
	}
	return mux
}

// Run serves HTTP, listens on the broker and fires schedules until ctx is
// done, then shuts the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.mqtt != nil {
		if err := a.mqtt.Listen(gctx, a.Dispatcher); err != nil {
			return fmt.Errorf("mqtt listen: %w", err)
		}
	}
	g.Go(func() error {
		a.Logger.Info("Serving", "addr", srv.Addr, "webhook", a.Config.Server.WebhookPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		a.Logger.Info("Shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if a.Scheduler != nil {
		g.Go(func() error { return a.Scheduler.Run(gctx) })
	}
	return g.Wait()
}

// Close releases every collaborator in reverse order of creation. It is
// safe to call more than once.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
