package aggregates

import "errors"

// CodeLimitExceeded marks validation errors raised by a configured size limit
const CodeLimitExceeded = "LIMIT_EXCEEDED"

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
