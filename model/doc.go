// Package model defines the provider-agnostic text generation abstraction
// used by the LLM-backed collaborators of botmesh: the intent classifier in
// package nlu and the translator in package translator.
//
// Providers (OpenAI, Anthropic, Gemini) implement Model in sub-packages so
// the conversation engine never depends on a vendor SDK. MockModel serves
// tests and offline examples.
package model
