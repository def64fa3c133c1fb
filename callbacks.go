package mailgate

import (
	"context"
	"io"
)

// Callbacks are the application hooks a Server invokes at each stage of an
// SMTP transaction. Every hook is optional; a nil hook is treated as
// unconditional success. Returning a non-nil error rejects the command; if
// the error is a *CallbackError its Code/Message are sent verbatim,
// otherwise the engine's default rejection code for that verb is used.
type Callbacks struct {
	// OnConnect runs once a Connection becomes ready (after the PROXY
	// header or the initial grace period), before the greeting is sent.
	OnConnect func(ctx context.Context, s *Session) error

	// OnHelo runs after EHLO/HELO is accepted and the session has been
	// reset, before the reply is sent.
	OnHelo func(ctx context.Context, s *Session) error

	// OnMailFrom runs after MAIL FROM is parsed, before it is recorded on
	// the envelope.
	OnMailFrom func(ctx context.Context, s *Session, from AddressRecord) error

	// OnRcptTo runs after RCPT TO is parsed, before it is recorded on the
	// envelope.
	OnRcptTo func(ctx context.Context, s *Session, to AddressRecord) error

	// OnData runs once DATA begins. r streams the dot-unstuffed message
	// body; the callback should read it to completion. The returned
	// string, if non-empty, is appended to the final 250 response
	// (e.g. a queue ID).
	OnData func(ctx context.Context, s *Session, r io.Reader) (string, error)

	// Authenticate validates SASL credentials extracted from an AUTH
	// exchange. A nil Authenticate with AUTH enabled rejects every
	// attempt.
	Authenticate func(ctx context.Context, mechanism, authcid, password string) (*AuthenticatedUser, error)
}
