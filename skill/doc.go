// Package skill holds the registry that turns intent names into runnable
// skills.
//
// Skills are registered either as Go factories or as data-only Descriptors
// loaded from YAML. Descriptors reference behaviour (parsers, conditions,
// reactions, lifecycle hooks) by key; the keys are resolved against Go
// functions registered with RegisterFunc. The same mechanism revives the
// parameters a conversation declared at runtime from its param change
// history, so no executable text is ever stored in a context.
package skill
