// Package storage defines the transcript store used to record completed
// chat completion exchanges, plus the sentinel errors and tenant context
// helpers shared by its implementations (memory, postgres).
package storage
