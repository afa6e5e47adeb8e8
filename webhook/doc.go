// Package webhook routes inbound messenger events to conversation flows.
//
// A Dispatcher processes one event at a time per user: it loads the
// conversation from the store, guards against parallel events of the same
// user, selects the flow variant, runs it and persists or clears the
// result. Handler exposes the Dispatcher as the HTTP endpoint a messaging
// platform posts to.
package webhook
