// Package worker runs sagas in the background.
//
// A Worker consumes run submissions from a task queue and executes them on an
// Engine. Submit enqueues a run and returns a Handle that can be awaited or
// cancelled; Start launches a number of consumer goroutines. Each consumer
// executes one saga at a time, so the consumer count bounds how many sagas
// run at once while every saga remains strictly sequential.
//
// Finished results are written to a persistence.ResultStore and can be read
// back with Result after the handle is gone. At most one run per run ID may
// be in flight; a second Submit fails with ErrRunInFlight.
//
// Queues may be shared between processes (Redis, SQLite). A worker that
// dequeues a run submitted elsewhere still stores its result, and Cancel
// works for it once it started executing locally.
package worker
