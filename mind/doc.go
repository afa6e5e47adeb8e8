// Package mind interprets a user utterance against the running
// conversation.
//
// A Classifier decides whether a message restarts the conversation, changes
// or digs into another intent, rewinds to the previous parameter, corrects
// an already collected parameter, or carries no recognisable meaning. The
// result drives the btw and reply flows.
package mind
