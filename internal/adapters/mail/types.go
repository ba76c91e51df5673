package mail

import (
	"fmt"
	"time"
)

// Message is a candidate bank notification fetched from the inbox.
// The subject is already MIME-decoded; Date comes from the envelope.
type Message struct {
	UID       uint32
	Subject   string
	FromEmail string
	Date      time.Time
}

// Error wraps an IMAP failure with the operation that produced it.
// Connect failures abort the whole tick; archive failures abort only the
// current notification.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("imap %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
