// Package nlu provides intent classifiers (core.IntentClassifier).
//
// LLM classifies with a language model from package model, Keyword matches
// keywords and regular expressions loaded from YAML, and Router selects one
// of several agents by the channel an event arrived on.
package nlu
