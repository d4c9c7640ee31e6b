package types

import "fmt"

// TransitionRefusedError is raised when a Store.Transition call names a
// status not reachable from the session's current status (spec §4.1
// "Failure semantics"). It is a programming error: logged at ERROR, never
// corrupts state.
type TransitionRefusedError struct {
	From Status
	To   Status
}

func (e *TransitionRefusedError) Error() string {
	return fmt.Sprintf("transition refused: %s -> %s", e.From, e.To)
}

// IsTransitionRefused reports whether err is a *TransitionRefusedError.
func IsTransitionRefused(err error) bool {
	_, ok := err.(*TransitionRefusedError)
	return ok
}

// BusyError is returned when a caller attempts to acquire the LLM/worker
// processing slot while it is already held (spec §4.1 acquire_llm_slot,
// invariant #6).
type BusyError struct{}

func (e *BusyError) Error() string {
	return "a processing call is already in flight for this session"
}

// IsBusy reports whether err is a *BusyError.
func IsBusy(err error) bool {
	_, ok := err.(*BusyError)
	return ok
}

// RetryRefusedError is raised when a retry is requested but
// correction_attempt has already reached MaxRetryAttempts (invariant #1, S5).
type RetryRefusedError struct {
	CorrectionAttempt int
	MaxRetryAttempts  int
}

func (e *RetryRefusedError) Error() string {
	return fmt.Sprintf("retry refused: correction_attempt %d >= max %d", e.CorrectionAttempt, e.MaxRetryAttempts)
}

// IsRetryRefused reports whether err is a *RetryRefusedError.
func IsRetryRefused(err error) bool {
	_, ok := err.(*RetryRefusedError)
	return ok
}

// WorkerError wraps a failure reported by a worker handler invoked through
// the Message Bus (spec §4.2 "captures any raised failure as a structured
// reply {success: false, error} rather than propagating").
type WorkerError struct {
	Worker string
	Action string
	Cause  error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("%s.%s failed: %v", e.Worker, e.Action, e.Cause)
}

func (e *WorkerError) Unwrap() error {
	return e.Cause
}
