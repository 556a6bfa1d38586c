package kernel

import "errors"

// Invocation errors are returned numerically to the caller and are never
// fatal: -1 invalid argument, -2 resource-exhaustion/semantics denial, -3
// null out-pointer. The sentinel errors below carry the same meaning for
// Go callers; syscall-layer code translates them back to the numeric codes
// external interfaces require.
var (
	ErrInvalidArg  = errors.New("kernel: invalid argument")
	ErrDenied      = errors.New("kernel: resource exhausted or not permitted")
	ErrNilOut      = errors.New("kernel: nil out-pointer")
)

// Code maps a sentinel error to its stable numeric invocation-error code, or
// 0 if err is nil.
func Code(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidArg):
		return -1
	case errors.Is(err, ErrDenied):
		return -2
	case errors.Is(err, ErrNilOut):
		return -3
	default:
		return -1
	}
}

// FatalError is raised by a kernel-only syscall misuse a correct program
// cannot reach: calling a kernel-only primitive from user mode, quit with
// outstanding children, or zap targeting self/init/a non-existent/an
// already-dying process. The kernel logs it and halts with code 1; it is
// never recovered.
type FatalError struct {
	Msg string
}

func (e *FatalError) Error() string { return e.Msg }
