package server

import "sync/atomic"

// ExitCode accumulates the process-wide exit status the way the original's
// Engine::process_exit_code does: any failed load or verification during
// the run's lifetime latches a non-zero status, and later successes never
// clear it (supplemented feature #4).
type ExitCode struct {
	value atomic.Int32
}

// Fail latches code if it is non-zero and no failure has been recorded yet,
// first writer wins.
func (e *ExitCode) Fail(code int32) {
	e.value.CompareAndSwap(0, code)
}

// Code returns the current exit status (0 if nothing has failed).
func (e *ExitCode) Code() int {
	return int(e.value.Load())
}
