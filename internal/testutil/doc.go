// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when constructing events and contexts and when
// asserting what a conversation sent. These helpers are not intended for
// production usage.
package testutil
