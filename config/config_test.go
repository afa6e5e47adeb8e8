package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
server:
  addr: ":9000"
log:
  format: json
  exclude: [chat]
bot:
  language: en
  parallel_event: allow
  strict_lock: true
  beacon_skills:
    enter: welcome
  active_event_skills:
    follow: greet
messenger:
  type: line
  line:
    channels:
      - channel_id: "1234"
        channel_secret: ${BOTMESH_TEST_SECRET}
        channel_access_token: token
nlu:
  agents:
    - type: keyword
      rules: rules.yaml
translator:
  enabled: true
  enable_translation: true
  model:
    provider: openai
    name: gpt-4o-mini
memory:
  type: bolt
  path: data/context.db
  retention: 5m
skills:
  dir: skills
schedules:
  - name: morning
    cron: "0 9 * * *"
    intent: remind
    recipients:
      - type: user
        userId: U1
monitor:
  enabled: true
`

func TestLoad(t *testing.T) {
	t.Setenv("BOTMESH_TEST_SECRET", "s3cret")
	dir := t.TempDir()
	path := filepath.Join(dir, "botmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", c.Server.Addr)
	assert.Equal(t, "/webhook", c.Server.WebhookPath)
	assert.Equal(t, 10*time.Second, c.Server.ShutdownTimeout)
	assert.Equal(t, "json", c.Log.Format)
	assert.Equal(t, []string{"chat"}, c.Log.Exclude)

	assert.Equal(t, "en", c.Bot.Language)
	assert.Equal(t, "input.unknown", c.Bot.DefaultIntent)
	assert.Equal(t, "builtin_default", c.Bot.DefaultSkill)
	assert.Equal(t, "allow", c.Bot.ParallelEvent)
	assert.True(t, c.Bot.StrictLock)
	assert.Equal(t, map[string]string{"enter": "welcome"}, c.Bot.BeaconSkills)
	assert.Equal(t, map[string]string{"follow": "greet"}, c.Bot.ActiveEventSkills)

	require.Len(t, c.Messenger.Line.Channels, 1)
	assert.Equal(t, "s3cret", c.Messenger.Line.Channels[0].Secret)
	assert.Equal(t, "token", c.Messenger.Line.Channels[0].AccessToken)

	require.Len(t, c.NLU.Agents, 1)
	assert.Equal(t, filepath.Join(dir, "rules.yaml"), c.NLU.Agents[0].Rules)

	assert.True(t, c.Translator.Enabled)
	assert.True(t, *c.Translator.LangDetection)
	assert.True(t, c.Translator.Translation)
	assert.Equal(t, "openai", c.Translator.Model.Provider)

	assert.Equal(t, "bolt", c.Memory.Type)
	assert.Equal(t, filepath.Join(dir, "data/context.db"), c.Memory.Path)
	assert.Equal(t, 5*time.Minute, c.Memory.Retention)
	assert.Equal(t, filepath.Join(dir, "skills"), c.Skills.Dir)

	require.Len(t, c.Schedules, 1)
	assert.Equal(t, "U1", c.Schedules[0].Recipients[0].ID())

	assert.True(t, c.Monitor.Enabled)
	assert.Equal(t, "/monitor", c.Monitor.Path)
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "ja", c.Bot.Language)
	assert.Equal(t, "ignore", c.Bot.ParallelEvent)
	assert.Equal(t, "memory", c.Memory.Type)
	assert.Equal(t, 600*time.Second, c.Memory.Retention)
	assert.Equal(t, "line", c.Messenger.Type)
	require.NotNil(t, c.Translator.LangDetection)
	assert.True(t, *c.Translator.LangDetection)
	assert.False(t, c.Translator.Translation)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{
			name: "empty document",
			doc:  "{}",
			want: []string{"messenger.line.channels", "nlu.agents: at least one agent"},
		},
		{
			name: "unknown values",
			doc: `
bot: {parallel_event: sometimes}
log: {format: xml, exclude: [everything]}
messenger: {type: telegram}
memory: {type: redis}
nlu: {agents: [{type: magic}]}
`,
			want: []string{"bot.parallel_event", "log.format", "log.exclude", "messenger.type", "memory.type", "nlu.agents[0].type"},
		},
		{
			name: "missing details",
			doc: `
messenger: {type: mqtt}
memory: {type: sqlite}
translator: {enabled: true}
nlu:
  agents:
    - {type: llm, channel_id: a}
    - {type: keyword}
`,
			want: []string{"messenger.mqtt.broker", "memory.path", "translator.model.provider", "nlu.agents[0].model.provider", "nlu.agents[1].channel_id", "nlu.agents[1].rules"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			for _, w := range tt.want {
				assert.ErrorContains(t, err, w)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
