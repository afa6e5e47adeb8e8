// Package core provides the foundational domain types and contracts of
// botmesh:
//
//   - Context (the serialisable state of one conversation)
//   - Event and Message (normalised platform input and output)
//   - Skill and Parameter (runtime skill declarations and hook signatures)
//   - ParameterDescriptor (the data-only form used by YAML skills and the
//     param change history)
//   - Bot (the handle given to skill hooks)
//   - Messenger, IntentClassifier, Translator and Parser collaborator
//     interfaces
//
// Implementations (flows, stores, messengers, classifiers) live in their own
// packages and depend on core, never the other way round.
package core
