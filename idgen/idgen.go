// Package idgen provides pluggable ID generation.
//
// Components that name things per request (the HTTP handler's request IDs,
// upload temp files) take a Generator, so the ID strategy is chosen at
// startup and tests can pin it.
package idgen

import "github.com/google/uuid"

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 version 7 UUIDs (time-sortable).
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends a fixed prefix to every ID of gen, e.g. "req_".
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()
