// Package line adapts the LINE Messaging API to core.Messenger.
package line

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/botmesh/core"
	"github.com/hupe1980/botmesh/logging"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the request body.
const SignatureHeader = "X-Line-Signature"

const (
	defaultEndpoint   = "https://api.line.me"
	defaultAPIVersion = "v2"
	maxResponseSize   = 1 << 20
)

// Channel holds the credentials of one LINE channel.
type Channel struct {
	ID     string `yaml:"channel_id"`
	Secret string `yaml:"channel_secret"`
	// AccessToken is a long-lived token. When empty a short-lived token is
	// issued from ID and Secret and refreshed on expiry.
	AccessToken string `yaml:"channel_access_token,omitempty"`
	// SwitcherSecret, when set, is used instead of Secret to verify
	// requests relayed by a switcher.
	SwitcherSecret string `yaml:"switcher_secret,omitempty"`
	// Destination is the bot user id LINE reports in webhook bodies. It
	// selects the channel when several are configured.
	Destination string `yaml:"destination,omitempty"`
	// TokenRetention bounds how long an issued token is reused.
	TokenRetention time.Duration `yaml:"token_retention,omitempty"`
}

// Options configures a Messenger.
type Options struct {
	// Endpoint is the API base URL.
	Endpoint   string
	APIVersion string
	HTTPClient *http.Client
	// PassThroughSecret signs events forwarded by PassThrough. Defaults to
	// the secret of the event's channel.
	PassThroughSecret string
	Logger            logging.Logger
}

type token struct {
	value  string
	expiry time.Time
}

// Messenger talks to the LINE Messaging API. It is safe for concurrent use.
type Messenger struct {
	channels []Channel
	opts     Options

	mu     sync.Mutex
	tokens map[string]token
	group  singleflight.Group
}

var _ core.Messenger = (*Messenger)(nil)

// New creates a Messenger for one or more channels.
func New(channels []Channel, optFns ...func(o *Options)) (*Messenger, error) {
	if len(channels) == 0 {
		return nil, errors.New("line: at least one channel is required")
	}
	for i, c := range channels {
		if c.ID == "" || c.Secret == "" {
			return nil, fmt.Errorf("line: channel %d: channel_id and channel_secret are required", i)
		}
	}

	opts := Options{
		Endpoint:   defaultEndpoint,
		APIVersion: defaultAPIVersion,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Endpoint = strings.TrimRight(opts.Endpoint, "/")

	return &Messenger{
		channels: channels,
		opts:     opts,
		tokens:   map[string]token{},
	}, nil
}

// Type implements core.Messenger.
func (m *Messenger) Type() string { return "line" }

// ValidateSignature implements core.Messenger. The signature may match any
// configured channel.
func (m *Messenger) ValidateSignature(header http.Header, body []byte) bool {
	sig := header.Get(SignatureHeader)
	if sig == "" {
		return false
	}
	for _, c := range m.channels {
		secret := c.Secret
		if c.SwitcherSecret != "" {
			secret = c.SwitcherSecret
		}
		if hmac.Equal([]byte(Sign(secret, body)), []byte(sig)) {
			return true
		}
	}
	return false
}

// Sign returns the signature LINE sends for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type webhookBody struct {
	Destination string        `json:"destination"`
	Events      []*core.Event `json:"events"`
}

// ExtractEvents implements core.Messenger. Every event is stamped with the
// id of the channel it was sent to.
func (m *Messenger) ExtractEvents(body []byte) ([]*core.Event, error) {
	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return nil, fmt.Errorf("line: decode webhook body: %w", err)
	}
	channel := m.channelFor(wb.Destination)
	for _, ev := range wb.Events {
		if ev == nil {
			continue
		}
		if ev.ChannelID == "" {
			ev.ChannelID = channel.ID
		}
	}
	return wb.Events, nil
}

// CheckSupportedEventType implements core.Messenger. Only messages and
// postbacks start, continue or interrupt a conversation.
func (m *Messenger) CheckSupportedEventType(ev *core.Event, flow string) bool {
	switch flow {
	case core.FlowStartConversation, core.FlowReply, core.FlowBtw:
		return ev.Type == core.EventTypeMessage || ev.Type == core.EventTypePostback
	}
	return false
}

// Reply implements core.Messenger.
func (m *Messenger) Reply(ctx context.Context, ev *core.Event, msgs []core.Message) error {
	body := map[string]any{"replyToken": ev.ReplyToken, "messages": msgs}
	err := m.call(ctx, m.channelByID(ev.ChannelID), "/bot/message/reply", body)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Message), "invalid reply token") {
		return fmt.Errorf("%w: %s", core.ErrInvalidReplyToken, apiErr.Message)
	}
	return err
}

// Send implements core.Messenger.
func (m *Messenger) Send(ctx context.Context, ev *core.Event, to string, msgs []core.Message, _ string) error {
	body := map[string]any{"to": to, "messages": msgs}
	return m.call(ctx, m.channelByID(ev.ChannelID), "/bot/message/push", body)
}

// PassThrough implements core.Messenger. The event is posted the way LINE
// would post it, signed with the pass-through secret.
func (m *Messenger) PassThrough(ctx context.Context, webhook string, ev *core.Event) error {
	b, err := json.Marshal(webhookBody{Events: []*core.Event{ev}})
	if err != nil {
		return fmt.Errorf("line: encode pass through: %w", err)
	}
	secret := m.opts.PassThroughSecret
	if secret == "" {
		secret = m.channelByID(ev.ChannelID).Secret
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("line: create pass through request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(secret, b))

	resp, err := m.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("line: pass through: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("line: pass through status %d", resp.StatusCode)
	}
	return nil
}

// APIError is a non-2xx answer of the Messaging API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("line: status %d: %s", e.StatusCode, e.Message)
}

// call posts body to path. A 401 answer drops the cached token and retries
// once with a fresh one.
func (m *Messenger) call(ctx context.Context, c Channel, path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("line: encode request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		tok, err := m.accessToken(ctx, c, attempt > 0)
		if err != nil {
			return err
		}
		err = m.post(ctx, path, tok, b)
		var apiErr *APIError
		if attempt == 0 && c.AccessToken == "" && errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			m.opts.Logger.Debug("Access token rejected, refreshing", "channel", c.ID)
			continue
		}
		return err
	}
}

func (m *Messenger) post(ctx context.Context, path, tok string, b []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url(path), bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("line: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := m.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("line: %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("line: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	return nil
}

func errorMessage(raw []byte) string {
	var v struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &v) == nil && v.Message != "" {
		return v.Message
	}
	return strings.TrimSpace(string(raw))
}

// accessToken returns the channel's token, issuing a new one when none is
// cached, the cached one expired or force is set. Concurrent refreshes of
// the same channel share one request.
func (m *Messenger) accessToken(ctx context.Context, c Channel, force bool) (string, error) {
	if c.AccessToken != "" {
		return c.AccessToken, nil
	}

	m.mu.Lock()
	t, ok := m.tokens[c.ID]
	if force {
		delete(m.tokens, c.ID)
	}
	m.mu.Unlock()
	if ok && !force && time.Now().Before(t.expiry) {
		return t.value, nil
	}

	v, err, _ := m.group.Do(c.ID, func() (any, error) {
		return m.issueToken(ctx, c)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Messenger) issueToken(ctx context.Context, c Channel) (string, error) {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", c.ID)
	data.Set("client_secret", c.Secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url("/oauth/accessToken"), strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("line: create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.opts.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("line: issue access token: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("line: read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	var v struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &v); err != nil || v.AccessToken == "" {
		return "", errors.New("line: failed to retrieve access token")
	}

	retention := c.TokenRetention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if v.ExpiresIn > 0 && time.Duration(v.ExpiresIn)*time.Second < retention {
		retention = time.Duration(v.ExpiresIn) * time.Second
	}

	m.mu.Lock()
	m.tokens[c.ID] = token{value: v.AccessToken, expiry: time.Now().Add(retention)}
	m.mu.Unlock()

	m.opts.Logger.Debug("Issued access token", "channel", c.ID, "retention", retention)
	return v.AccessToken, nil
}

func (m *Messenger) url(path string) string {
	return m.opts.Endpoint + "/" + m.opts.APIVersion + path
}

func (m *Messenger) channelFor(destination string) Channel {
	if destination != "" {
		for _, c := range m.channels {
			if c.Destination == destination {
				return c
			}
		}
	}
	return m.channels[0]
}

func (m *Messenger) channelByID(id string) Channel {
	for _, c := range m.channels {
		if c.ID == id {
			return c
		}
	}
	return m.channels[0]
}
