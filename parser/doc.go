// Package parser contains the built-in parameter validators (string, number,
// list, email, phone, date, datetime) and a Registry resolving parser names
// used in skill declarations.
//
// Invalid input is reported with core.Reject and a stable code such as
// "be_parser__too_long" so reactions can pick a corrective message. Policy
// mistakes (a list parser without list, a malformed min date) are plain
// errors and abort the conversation.
package parser
