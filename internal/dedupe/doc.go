// Package dedupe remembers the outcome of keyed requests for a limited time
// so a client retry carrying the same idempotency key gets the original
// result instead of repeating side effects.
package dedupe
