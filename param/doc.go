// Package param decides which parameter a conversation has to collect next.
//
// IdentifyToConfirm derives the initial queue of required parameters and
// Resolver.Pop walks that queue, skipping parameters whose condition or
// while hook declines and checking out nested sub-parameter collections.
package param
