// Package task implements the multi-packet conversations layered on top of
// an Online device session.
//
// A task is a small state machine identified by a process-wide 32-bit ID.
// Every TASK_REQUEST the broker sends and every TASK_DATA the device answers
// with carries the task kind and ID, so the owning session can route
// replies back to the right task:
//
//	Byte 0:   Task kind
//	Byte 1-4: Task ID (little-endian)
//	Byte 5:   Operation
//	Byte 6+:  Operation payload
//
// Tasks never own goroutines or timers of their own. They reach the device
// and the shared timer queue through a Link, which the device session
// implements, and run entirely on the broker's domain goroutine. Each task
// owns its retry policy and ends in exactly one terminal state:
//
//   - Finished: the conversation completed
//   - Failed: the device reported failure, the retry budget ran out, or the
//     session dropped (ErrAborted)
//
// The Observer is notified synchronously on every status change, including
// aborts, before the call that caused it returns.
//
// # Kinds
//
//   - DownloadEEPROM reads the device's persistent storage in slices and
//     re-requests only the slices that went missing
//   - ServoProgrammer lets an operator move a servo live and deploy the
//     calibrated travel
//   - Rename and ClearEEPROM are single request/acknowledge exchanges
//   - NetworkTest measures round-trip time and loss over a fixed duration
package task
