// SPDX-License-Identifier: MPL-2.0

package cmd

import "fmt"

// ExitProblems is the exit status of `crossmodel check` when the workspace
// has error diagnostics.
const ExitProblems = 1

// ExitError carries a crossmodel exit status out of a RunE handler. Execute
// prints the wrapped error and exits with Code.
type ExitError struct {
	Code int
	Err  error
}

// problemsFound reports n error diagnostics with ExitProblems.
func problemsFound(n int) *ExitError {
	return &ExitError{Code: ExitProblems, Err: fmt.Errorf("check found %d error(s)", n)}
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("crossmodel: exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}
