package service

import "fmt"

// UndeliveredError reports tokens that were issued but whose email failed.
// The tokens remain issued to Recipient; resend delivers them.
type UndeliveredError struct {
	Type      string
	Recipient string
	Count     int
	Err       error
}

func (e *UndeliveredError) Error() string {
	return fmt.Sprintf("%d %s tokens issued to %s but not sent (use resend): %v",
		e.Count, e.Type, e.Recipient, e.Err)
}

func (e *UndeliveredError) Unwrap() error {
	return e.Err
}
