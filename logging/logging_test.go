package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hupe1980/botmesh/core"
)

type recordingLogger struct {
	lines []string
	args  [][]any
}

func (r *recordingLogger) record(msg string, args []any) {
	r.lines = append(r.lines, msg)
	r.args = append(r.args, args)
}

func (r *recordingLogger) Debug(msg string, args ...any) { r.record(msg, args) }
func (r *recordingLogger) Info(msg string, args ...any)  { r.record(msg, args) }
func (r *recordingLogger) Warn(msg string, args ...any)  { r.record(msg, args) }
func (r *recordingLogger) Error(msg string, args ...any) { r.record(msg, args) }

func TestBotLogger_Attributes(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf})
	l := With(With(base, "component", "webhook"), "session_id", "U1", "chat_id", "chat-1")

	LogTurn(l, core.FlowReply, "order", 5*time.Millisecond, nil)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Turn completed", entry["msg"])
	assert.Equal(t, "webhook", entry["component"])
	assert.Equal(t, "U1", entry["session_id"])
	assert.Equal(t, "chat-1", entry["chat_id"])
	assert.Equal(t, "order", entry["skill"])
	assert.Equal(t, true, entry["success"])

	buf.Reset()
	base.Info("plain")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, buf.String(), "component", "With does not alter the parent")
}

func TestBotLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Output: &buf})
	l.Info("hidden")
	LogClassification(l, "order", time.Millisecond, nil)
	assert.Empty(t, buf.String())

	LogTurn(l, core.FlowReply, "order", time.Millisecond, errors.New("boom"))
	assert.Contains(t, buf.String(), "Turn failed")
	assert.Contains(t, buf.String(), "boom")
}

func TestWith(t *testing.T) {
	rec := &recordingLogger{}
	l := With(rec, "component", "memory")
	l.Warn("timer fired", "key", "be_context_U1")
	assert.Equal(t, []string{"timer fired"}, rec.lines)
	assert.Equal(t, []any{"component", "memory", "key", "be_context_U1"}, rec.args[0])

	assert.Equal(t, NoOpLogger{}, With(NoOpLogger{}, "a", 1))

	var buf bytes.Buffer
	s := With(NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, nil))), "component", "flow")
	s.Info("ok")
	assert.Contains(t, buf.String(), `"component":"flow"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("debug"))
	assert.Equal(t, LogLevelError, ParseLevel("ERROR"))
	assert.Equal(t, LogLevelInfo, ParseLevel("verbose"))
}

func TestZapAdapter(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)
	l := NewZapAdapter(zap.New(obs))

	With(l, "component", "memory").Info("stored", "key", "be_context_U1")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "stored", entry.Message)
	assert.Equal(t, "be_context_U1", entry.ContextMap()["key"])
	assert.Equal(t, "memory", entry.ContextMap()["component"])
}

func TestFormatSkillStatus(t *testing.T) {
	now := time.UnixMilli(10_000)
	conv := core.NewContext(core.ContextOptions{})
	conv.Confirming = "size"
	conv.LaunchedAt = 7_500

	tests := []struct {
		status  string
		payload StatusPayload
		want    string
	}{
		{StatusAborted, StatusPayload{Context: conv}, "C U chat order - aborted in confirming size"},
		{StatusAborted, StatusPayload{}, "C U chat order - aborted in confirming unknown_parameter"},
		{StatusRestarted, StatusPayload{Context: conv}, "C U chat order - restarted in confirming size"},
		{StatusSwitched, StatusPayload{Context: conv, Intent: &core.Intent{Name: "menu"}}, "C U chat order - switched to menu in confirming size"},
		{StatusSwitched, StatusPayload{}, "C U chat order - switched to unknown_skill in confirming unknown_parameter"},
		{StatusCompleted, StatusPayload{Context: conv}, "C U chat order - completed in 2500."},
		{StatusCompleted, StatusPayload{}, "C U chat order - completed in unknown_duration."},
		{StatusLaunched, StatusPayload{}, "C U chat order - launched"},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatSkillStatus("C", "U", "chat", "order", tt.status, tt.payload, now))
		})
	}

	abended := FormatSkillStatus("C", "U", "chat", "order", StatusAbended, StatusPayload{Context: conv, Err: errors.New("boom")}, now)
	assert.True(t, strings.HasPrefix(abended, "C U chat order - abended Error:"))
	assert.Contains(t, abended, `"message":"boom"`)
	assert.Contains(t, abended, " Context:")
}

func TestAuditLogger_Exclude(t *testing.T) {
	rec := &recordingLogger{}
	a := NewAuditLogger(NewSlogSink(rec), ExcludeChat)

	require.NoError(t, a.Chat(context.Background(), "C", "U", "chat", "order", "user", core.TextMessage("hi")))
	require.NoError(t, a.SkillStatus(context.Background(), "C", "U", "chat", "order", StatusLaunched, StatusPayload{}))

	assert.Equal(t, []string{"C U chat order - launched"}, rec.lines)
}

func TestMultiSink(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	m := MultiSink{NewSlogSink(a), NewSlogSink(b)}
	require.NoError(t, m.Chat(context.Background(), "C", "U", "chat", "order", "bot", core.TextMessage("which size?")))
	assert.Equal(t, []string{"C U chat order - bot says which size?"}, a.lines)
	assert.Equal(t, a.lines, b.lines)
}
