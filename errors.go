package mailgate

import "errors"

var (
	ErrServerClosed    = errors.New("smtp: server closed")
	ErrMessageTooLarge = errors.New("smtp: message too large")
	ErrTimeout         = errors.New("smtp: timeout")
	ErrTLSRequired     = errors.New("smtp: TLS required")
	ErrAuthRequired    = errors.New("smtp: authentication required")
	ErrInvalidCommand  = errors.New("smtp: invalid command")
	ErrNoCertificate   = errors.New("smtp: no TLS certificate configured")
)

// CallbackError lets a Callbacks implementation control the exact SMTP
// response sent back to the client instead of falling back to the engine's
// default code for that verb.
type CallbackError struct {
	Code         SMTPCode
	EnhancedCode EnhancedCode
	Message      string
}

func (e *CallbackError) Error() string {
	return e.Message
}

// Reject builds a CallbackError for the common case of rejecting a MAIL
// FROM, RCPT TO, or DATA with a specific code and message.
func Reject(code SMTPCode, message string) *CallbackError {
	return &CallbackError{Code: code, Message: message}
}
