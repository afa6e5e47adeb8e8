package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/botmesh/core"
)

// Skill statuses reported through SkillLogger.
const (
	StatusLaunched  = "launched"
	StatusAborted   = "aborted"
	StatusSwitched  = "switched"
	StatusRestarted = "restarted"
	StatusCompleted = "completed"
	StatusAbended   = "abended"
)

// Exclude list entries understood by NewAuditLogger.
const (
	ExcludeSkillStatus = "skill-status"
	ExcludeChat        = "chat"
)

// StatusPayload carries the optional details of a skill status change.
type StatusPayload struct {
	Context *core.Context
	Intent  *core.Intent
	Err     error
}

// SkillLogger is the audit trail of conversations: skill lifecycle changes
// and every line said by the user or the bot.
type SkillLogger interface {
	SkillStatus(ctx context.Context, channelID, userID, chatID, skill, status string, payload StatusPayload) error
	Chat(ctx context.Context, channelID, userID, chatID, skill, who string, msg core.Message) error
}

// AuditLogger filters audit records by kind before handing them to a sink.
type AuditLogger struct {
	sink       SkillLogger
	skipStatus bool
	skipChat   bool
}

var _ SkillLogger = (*AuditLogger)(nil)

// NewAuditLogger wraps sink. exclude may contain "skill-status" and "chat".
func NewAuditLogger(sink SkillLogger, exclude ...string) *AuditLogger {
	a := &AuditLogger{sink: sink}
	for _, e := range exclude {
		switch e {
		case ExcludeSkillStatus:
			a.skipStatus = true
		case ExcludeChat:
			a.skipChat = true
		}
	}
	return a
}

// SkillStatus implements SkillLogger.
func (a *AuditLogger) SkillStatus(ctx context.Context, channelID, userID, chatID, skill, status string, payload StatusPayload) error {
	if a.skipStatus || a.sink == nil {
		return nil
	}
	return a.sink.SkillStatus(ctx, channelID, userID, chatID, skill, status, payload)
}

// Chat implements SkillLogger.
func (a *AuditLogger) Chat(ctx context.Context, channelID, userID, chatID, skill, who string, msg core.Message) error {
	if a.skipChat || a.sink == nil {
		return nil
	}
	return a.sink.Chat(ctx, channelID, userID, chatID, skill, who, msg)
}

// SlogSink renders audit records as single log lines.
type SlogSink struct {
	logger Logger
	now    func() time.Time
}

var _ SkillLogger = (*SlogSink)(nil)

// NewSlogSink returns a sink writing to logger at info level.
func NewSlogSink(logger Logger) *SlogSink {
	return &SlogSink{logger: logger, now: time.Now}
}

// SkillStatus implements SkillLogger.
func (s *SlogSink) SkillStatus(_ context.Context, channelID, userID, chatID, skill, status string, payload StatusPayload) error {
	s.logger.Info(FormatSkillStatus(channelID, userID, chatID, skill, status, payload, s.now()), "kind", ExcludeSkillStatus, "status", status)
	return nil
}

// Chat implements SkillLogger.
func (s *SlogSink) Chat(_ context.Context, channelID, userID, chatID, skill, who string, msg core.Message) error {
	s.logger.Info(FormatChat(channelID, userID, chatID, skill, who, msg), "kind", ExcludeChat)
	return nil
}

// FormatSkillStatus renders one status line.
func FormatSkillStatus(channelID, userID, chatID, skill, status string, payload StatusPayload, now time.Time) string {
	head := fmt.Sprintf("%s %s %s %s - %s", channelID, userID, chatID, skill, status)

	confirming := "unknown_parameter"
	if payload.Context != nil && payload.Context.Confirming != "" {
		confirming = payload.Context.Confirming
	}

	switch status {
	case StatusAborted, StatusRestarted:
		return fmt.Sprintf("%s in confirming %s", head, confirming)
	case StatusSwitched:
		to := "unknown_skill"
		if payload.Intent != nil && payload.Intent.Name != "" {
			to = payload.Intent.Name
		}
		return fmt.Sprintf("%s to %s in confirming %s", head, to, confirming)
	case StatusCompleted:
		ttc := "unknown_duration"
		if payload.Context != nil && payload.Context.LaunchedAt > 0 {
			ttc = fmt.Sprint(now.UnixMilli() - payload.Context.LaunchedAt)
		}
		return fmt.Sprintf("%s in %s.", head, ttc)
	case StatusAbended:
		line := head
		if payload.Err != nil {
			b, _ := json.Marshal(map[string]string{"message": payload.Err.Error(), "name": fmt.Sprintf("%T", payload.Err)})
			line += " Error:" + string(b)
		}
		if payload.Context != nil {
			if b, err := payload.Context.Encode(); err == nil {
				line += " Context:" + string(b)
			}
		}
		return line
	}
	return head
}

// FormatChat renders one chat line.
func FormatChat(channelID, userID, chatID, skill, who string, msg core.Message) string {
	return fmt.Sprintf("%s %s %s %s - %s says %s", channelID, userID, chatID, skill, who, msg.Text())
}

// MultiSink fans audit records out to several sinks. The first error wins;
// every sink is still called.
type MultiSink []SkillLogger

var _ SkillLogger = MultiSink(nil)

// SkillStatus implements SkillLogger.
func (m MultiSink) SkillStatus(ctx context.Context, channelID, userID, chatID, skill, status string, payload StatusPayload) error {
	var first error
	for _, s := range m {
		if err := s.SkillStatus(ctx, channelID, userID, chatID, skill, status, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Chat implements SkillLogger.
func (m MultiSink) Chat(ctx context.Context, channelID, userID, chatID, skill, who string, msg core.Message) error {
	var first error
	for _, s := range m {
		if err := s.Chat(ctx, channelID, userID, chatID, skill, who, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NoOpSkillLogger drops every audit record.
type NoOpSkillLogger struct{}

// SkillStatus implements SkillLogger.
func (NoOpSkillLogger) SkillStatus(context.Context, string, string, string, string, string, StatusPayload) error {
	return nil
}

// Chat implements SkillLogger.
func (NoOpSkillLogger) Chat(context.Context, string, string, string, string, string, core.Message) error {
	return nil
}
