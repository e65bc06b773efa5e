package task

import "errors"

// Domain errors for the task package.
var (
	// ErrTimeout is recorded when a task exhausts its retry budget.
	ErrTimeout = errors.New("task: device did not respond")

	// ErrDeviceFailure is recorded when the device reports a failure.
	ErrDeviceFailure = errors.New("task: device reported failure")

	// ErrAborted is recorded when the owning session goes offline or the
	// task is cancelled.
	ErrAborted = errors.New("task: aborted")

	// ErrInvalidData is returned for TASK_DATA that does not fit the task.
	ErrInvalidData = errors.New("task: invalid data")

	// ErrInvalidState is returned when an operator command does not fit the
	// task's current state.
	ErrInvalidState = errors.New("task: invalid state")

	// ErrUnknownKind is returned when parsing an unknown kind name.
	ErrUnknownKind = errors.New("task: unknown kind")
)
