package txn

import "fmt"

// Status is the state of a transaction. PENDING moves to exactly one of the
// terminal states and never changes again.
type Status uint8

const (
	Pending Status = iota
	Committed
	Aborted
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Terminal reports whether s is stable forever.
func (s Status) Terminal() bool {
	return s == Committed || s == Aborted
}
