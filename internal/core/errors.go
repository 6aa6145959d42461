package core

import "fmt"

// EngineFault marks a programmer/contract violation: something the
// caller should never be able to trigger through well-formed input,
// as opposed to a domain rejection (which is surfaced on the order's
// LastMsg instead of panicking). Callers that want to recover from a
// malformed-input bug during development can recover() at the call
// site and inspect this type.
type EngineFault struct {
	Op  string
	Msg string
}

func (e *EngineFault) Error() string {
	return fmt.Sprintf("core: %s: %s", e.Op, e.Msg)
}

func fault(op, format string, args ...interface{}) {
	panic(&EngineFault{Op: op, Msg: fmt.Sprintf(format, args...)})
}
