package core

import "testing"

func TestEvent_SenderAndTo(t *testing.T) {
	ev := &Event{Type: EventTypeMessage, Source: &Source{Type: "user", UserID: "U1"}}
	if ev.SenderID() != "U1" || ev.SessionID() != "U1" {
		t.Fatalf("unexpected sender: %q", ev.SenderID())
	}

	group := &Event{Type: EventTypeMessage, Source: &Source{Type: "group", GroupID: "G1", UserID: "U1"}}
	if group.SenderID() != "G1" {
		t.Fatalf("group sender should be group id, got %q", group.SenderID())
	}

	push := NewPushEvent(Source{Type: "user", UserID: "U2"}, Intent{Name: "remind"}, "ja")
	if push.SenderID() != "U2" || push.ToID() != "U2" {
		t.Fatalf("push sender should be recipient, got %q", push.SenderID())
	}
	if push.IdentifyEventType() != EventTypePush {
		t.Fatalf("unexpected type %q", push.IdentifyEventType())
	}
}

func TestEvent_ParamValue(t *testing.T) {
	text := &Event{Type: EventTypeMessage, Message: TextMessage("hello")}
	if v, ok := text.ParamValue().(string); !ok || v != "hello" {
		t.Fatalf("text message should yield its text, got %#v", text.ParamValue())
	}
	if text.MessageText() != "hello" {
		t.Fatalf("unexpected message text %q", text.MessageText())
	}

	loc := &Event{Type: EventTypeMessage, Message: Message{"type": "location", "address": "Tokyo"}}
	m, ok := loc.ParamValue().(map[string]any)
	if !ok || m["address"] != "Tokyo" {
		t.Fatalf("non text message should yield the message object, got %#v", loc.ParamValue())
	}

	pb := &Event{Type: EventTypePostback, Postback: &Postback{Data: "M"}}
	pm, ok := pb.ParamValue().(map[string]any)
	if !ok || pm["data"] != "M" {
		t.Fatalf("postback should yield the postback object, got %#v", pb.ParamValue())
	}
	if pb.MessageText() != "M" {
		t.Fatalf("postback text should be its data, got %q", pb.MessageText())
	}
}

func TestEvent_PostbackJSON(t *testing.T) {
	ev := &Event{Type: EventTypePostback, Postback: &Postback{Data: `{"_type":"intent","intent":{"name":"order"}}`}}
	payload, ok := ev.PostbackJSON()
	if !ok || payload["_type"] != "intent" {
		t.Fatalf("expected JSON payload, got %#v", payload)
	}

	plain := &Event{Type: EventTypePostback, Postback: &Postback{Data: "plain"}}
	if _, ok := plain.PostbackJSON(); ok {
		t.Fatal("plain data must not decode")
	}

	msg := &Event{Type: EventTypeMessage, Message: TextMessage(`{"a":1}`)}
	if _, ok := msg.PostbackJSON(); ok {
		t.Fatal("message events are never postbacks")
	}
}

func TestMessage_Text(t *testing.T) {
	if TextMessage("hi").Text() != "hi" {
		t.Fatal("text message")
	}
	if (Message{"type": "template", "altText": "alt"}).Text() != "alt" {
		t.Fatal("altText fallback")
	}
	if (Message{"type": "sticker"}).Text() != `{"type":"sticker"}` {
		t.Fatal("json fallback")
	}
}
