// Package timing waits for asynchronous UI state changes.
//
// UI state changes do not produce wake-up signals a test goroutine could
// block on, so waiting is a poll: a [Condition] is re-evaluated every
// [SleepInterval] until it holds or a timeout elapses. The condition is always
// evaluated at least once, so an already-satisfied condition never fails,
// whatever the timeout.
//
// Conditions that read component state should do so through the execution
// bridge in package edt, since Test is called on the waiting goroutine.
package timing
