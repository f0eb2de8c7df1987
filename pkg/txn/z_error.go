package txn

import (
	"fmt"

	"github.com/pkg/errors"
)

// InvariantError reports an attempt to move a transaction out of a terminal
// state. It is not recoverable: the process must not keep serving.
type InvariantError struct {
	ID     uint64
	Status Status
	Op     string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("txn %d: %s of a %s transaction", e.ID, e.Op, e.Status)
}

func IsInvariantViolation(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
