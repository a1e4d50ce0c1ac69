// Package institutes implements the institution directory: a validated,
// immutable list of billed institutions loaded from YAML, with email-domain
// to institution resolution by longest-suffix matching.
//
// Validation is eager. A directory in which two institutions share a domain
// or a display name is a configuration error and aborts the run before any
// record is processed.
package institutes
