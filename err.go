package godp

import (
	"fmt"
	"runtime/debug"
)

// ContractError is raised with panic when a caller omits a capability an action
// needs, e.g. an output action without an output port handler. It marks an
// integration bug, not a runtime condition.
type ContractError struct {
	Err   error
	Stack []byte
}

func (self ContractError) Error() string {
	return fmt.Sprintf("ContractError with Stack: %s\n%s",
		self.Err,
		string(self.Stack),
	)
}

func (self ContractError) Unwrap() error {
	return self.Err
}

// InvariantError is raised with panic when dispatch meets a record kind outside
// the recognized set. Upstream validation must have rejected such input, so
// this must never trigger on a valid action list.
type InvariantError struct {
	Err   error
	Stack []byte
}

func (self InvariantError) Error() string {
	return fmt.Sprintf("InvariantError with Stack: %s\n%s",
		self.Err,
		string(self.Stack),
	)
}

func (self InvariantError) Unwrap() error {
	return self.Err
}

// Assert panics with a ContractError when cond does not hold.
func Assert(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(ContractError{
			Err:   fmt.Errorf(format, args...),
			Stack: debug.Stack(),
		})
	}
}

// NotReached panics with an InvariantError.
func NotReached(format string, args ...interface{}) {
	panic(InvariantError{
		Err:   fmt.Errorf(format, args...),
		Stack: debug.Stack(),
	})
}
