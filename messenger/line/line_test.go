package line

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/botmesh/core"
)

type call struct {
	Path          string
	Authorization string
	Body          map[string]any
}

type fakeAPI struct {
	mu       sync.Mutex
	calls    []call
	issued   int
	status   int
	response string
	// rejectToken answers 401 for this bearer token.
	rejectToken string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path == "/v2/oauth/accessToken" {
		f.issued++
		tok := "issued-token"
		if f.issued > 1 {
			tok = "fresh-token"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": tok, "expires_in": 3600})
		return
	}

	b, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(b, &body)
	auth := r.Header.Get("Authorization")
	f.calls = append(f.calls, call{Path: r.URL.Path, Authorization: auth, Body: body})

	if f.rejectToken != "" && auth == "Bearer "+f.rejectToken {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"Authentication failed"}`)
		return
	}
	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, f.response)
		return
	}
	_, _ = io.WriteString(w, `{}`)
}

func newMessenger(t *testing.T, api *fakeAPI, channels ...Channel) *Messenger {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	if len(channels) == 0 {
		channels = []Channel{{ID: "C1", Secret: "secret", AccessToken: "long-lived"}}
	}
	m, err := New(channels, func(o *Options) {
		o.Endpoint = srv.URL
		o.HTTPClient = srv.Client()
	})
	require.NoError(t, err)
	return m
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New([]Channel{{ID: "C1"}})
	assert.Error(t, err)
}

func TestValidateSignature(t *testing.T) {
	m, err := New([]Channel{
		{ID: "C1", Secret: "one"},
		{ID: "C2", Secret: "two", SwitcherSecret: "switch"},
	})
	require.NoError(t, err)
	body := []byte(`{"events":[]}`)

	tests := []struct {
		name   string
		secret string
		valid  bool
	}{
		{"first channel", "one", true},
		{"switcher secret", "switch", true},
		{"shadowed secret", "two", false},
		{"unknown secret", "nope", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			h.Set(SignatureHeader, Sign(tt.secret, body))
			assert.Equal(t, tt.valid, m.ValidateSignature(h, body))
		})
	}

	assert.False(t, m.ValidateSignature(http.Header{}, body))
}

func TestExtractEvents(t *testing.T) {
	m, err := New([]Channel{
		{ID: "C1", Secret: "one"},
		{ID: "C2", Secret: "two", Destination: "Ubot2"},
	})
	require.NoError(t, err)

	body := `{
		"destination": "Ubot2",
		"events": [
			{"type":"message","replyToken":"r1","timestamp":1700000000000,
			 "source":{"type":"user","userId":"U1"},
			 "message":{"id":"1","type":"text","text":"I want pizza"}},
			{"type":"postback","replyToken":"r2","timestamp":1700000000001,
			 "source":{"type":"group","groupId":"G1","userId":"U2"},
			 "postback":{"data":"yes","params":{"date":"2024-01-01"}}},
			{"type":"beacon","replyToken":"r3","timestamp":1700000000002,
			 "source":{"type":"user","userId":"U3"},
			 "beacon":{"hwid":"d41d8cd98f","type":"enter"}}
		]
	}`
	events, err := m.ExtractEvents([]byte(body))
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, "C2", events[0].ChannelID)
	assert.Equal(t, "U1", events[0].SenderID())
	assert.Equal(t, "I want pizza", events[0].MessageText())

	assert.Equal(t, "G1", events[1].SenderID())
	assert.Equal(t, "yes", events[1].PostbackPayload())
	assert.Equal(t, map[string]any{"date": "2024-01-01"}, events[1].Postback.Params)

	assert.Equal(t, "enter", events[2].BeaconEventType())

	_, err = m.ExtractEvents([]byte("not json"))
	assert.Error(t, err)
}

func TestCheckSupportedEventType(t *testing.T) {
	m, err := New([]Channel{{ID: "C1", Secret: "s"}})
	require.NoError(t, err)

	msg := &core.Event{Type: core.EventTypeMessage}
	follow := &core.Event{Type: core.EventTypeFollow}

	assert.True(t, m.CheckSupportedEventType(msg, core.FlowStartConversation))
	assert.True(t, m.CheckSupportedEventType(msg, core.FlowReply))
	assert.True(t, m.CheckSupportedEventType(msg, core.FlowBtw))
	assert.False(t, m.CheckSupportedEventType(follow, core.FlowStartConversation))
	assert.False(t, m.CheckSupportedEventType(msg, core.FlowPush))
}

func TestReplyAndSend(t *testing.T) {
	api := &fakeAPI{}
	m := newMessenger(t, api)
	ctx := context.Background()
	ev := &core.Event{Type: core.EventTypeMessage, ChannelID: "C1", ReplyToken: "token-1", Source: &core.Source{Type: "user", UserID: "U1"}}

	require.NoError(t, m.Reply(ctx, ev, []core.Message{core.TextMessage("hi")}))
	require.NoError(t, m.Send(ctx, ev, "U9", []core.Message{core.TextMessage("pushed")}, "en"))

	require.Len(t, api.calls, 2)
	assert.Equal(t, "/v2/bot/message/reply", api.calls[0].Path)
	assert.Equal(t, "Bearer long-lived", api.calls[0].Authorization)
	assert.Equal(t, "token-1", api.calls[0].Body["replyToken"])

	assert.Equal(t, "/v2/bot/message/push", api.calls[1].Path)
	assert.Equal(t, "U9", api.calls[1].Body["to"])
	msgs := api.calls[1].Body["messages"].([]any)
	assert.Equal(t, "pushed", msgs[0].(map[string]any)["text"])
}

func TestReplyInvalidToken(t *testing.T) {
	api := &fakeAPI{status: http.StatusBadRequest, response: `{"message":"Invalid reply token"}`}
	m := newMessenger(t, api)

	err := m.Reply(context.Background(), &core.Event{ChannelID: "C1", ReplyToken: "used"}, []core.Message{core.TextMessage("hi")})
	assert.ErrorIs(t, err, core.ErrInvalidReplyToken)

	api.response = `{"message":"The request body has 1 error(s)"}`
	err = m.Reply(context.Background(), &core.Event{ChannelID: "C1", ReplyToken: "x"}, []core.Message{core.TextMessage("hi")})
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrInvalidReplyToken)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestIssuedTokenRefreshedOnUnauthorized(t *testing.T) {
	api := &fakeAPI{rejectToken: "issued-token"}
	m := newMessenger(t, api, Channel{ID: "C1", Secret: "secret"})
	ctx := context.Background()
	ev := &core.Event{ChannelID: "C1"}

	require.NoError(t, m.Send(ctx, ev, "U1", []core.Message{core.TextMessage("a")}, ""))
	require.NoError(t, m.Send(ctx, ev, "U1", []core.Message{core.TextMessage("b")}, ""))

	assert.Equal(t, 2, api.issued)
	require.Len(t, api.calls, 3)
	assert.Equal(t, "Bearer issued-token", api.calls[0].Authorization)
	assert.Equal(t, "Bearer fresh-token", api.calls[1].Authorization)
	assert.Equal(t, "Bearer fresh-token", api.calls[2].Authorization)
}

func TestPassThrough(t *testing.T) {
	var (
		gotSig  string
		gotBody []byte
	)
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer target.Close()

	m, err := New([]Channel{{ID: "C1", Secret: "secret"}}, func(o *Options) {
		o.PassThroughSecret = "relay"
	})
	require.NoError(t, err)

	ev := &core.Event{Type: core.EventTypeFollow, Source: &core.Source{Type: "user", UserID: "U1"}}
	require.NoError(t, m.PassThrough(context.Background(), target.URL, ev))

	assert.Equal(t, Sign("relay", gotBody), gotSig)
	var wb webhookBody
	require.NoError(t, json.Unmarshal(gotBody, &wb))
	require.Len(t, wb.Events, 1)
	assert.Equal(t, "U1", wb.Events[0].SenderID())
}
