// Package thinker provides the shared timer queue driven by the broker's
// domain goroutine.
//
// Components that need a future wake-up (configuration retries, state resend,
// idle timeouts, task retries) register a callback with Schedule and keep the
// returned Handle so they can Cancel it later. The domain loop calls Fire on
// every tick; expired callbacks run in wake-time order on the caller's
// goroutine.
//
// A Queue is not safe for concurrent use. Only the goroutine that owns the
// domain state may touch it.
package thinker
