// Package flow runs one conversation turn.
//
// An Engine holds the collaborators shared by every turn (messenger, intent
// classifier, translator, skill registry, parsers, audit logger). For each
// event the dispatcher asks the Engine to Select a Variant:
//
//   - start_conversation for a user without active conversation
//   - reply while a parameter is being confirmed
//   - btw when the user speaks up while nothing is being confirmed
//   - push for programmatically injected events
//   - beacon and active_event for proximity and follow/join style events
//
// Every variant ends in Flow.Respond, the loop that collects the next
// parameter, finishes the skill, resumes a parent conversation or marks the
// context for clearing.
package flow
