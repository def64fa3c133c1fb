package mailgate

import "strings"

// AuthenticatedUser is the identity established by a successful AUTH
// exchange. Authentication is connection-scoped, not transaction-scoped:
// it survives RSET, HELO/EHLO (including the EHLO after a STARTTLS
// upgrade), and XCLIENT ADDR changes, and is cleared only by an explicit
// XCLIENT LOGIN= reset or connection close.
type AuthenticatedUser struct {
	Username  string
	Mechanism string
}

// Envelope holds the sender and recipients of the mail transaction in
// progress. It is replaced wholesale on MAIL FROM, RSET, HELO/EHLO, and
// after a completed DATA.
type Envelope struct {
	MailFrom  *AddressRecord
	RcptTo    []AddressRecord
}

// addRecipient appends rec, replacing any existing entry whose Address
// matches case-insensitively (RCPT TO for the same mailbox twice updates
// its parameters rather than duplicating it).
func (e *Envelope) addRecipient(rec AddressRecord) {
	for i := range e.RcptTo {
		if strings.EqualFold(e.RcptTo[i].Address, rec.Address) {
			e.RcptTo[i] = rec
			return
		}
	}
	e.RcptTo = append(e.RcptTo, rec)
}

// Session is the per-transaction state of a Connection, exposed to
// Callbacks. A new Session replaces the old one on HELO/EHLO and on RSET;
// User and the identity fields survive those resets.
type Session struct {
	ID                string
	RemoteAddress     string
	ClientHostname    string
	HostNameAppearsAs string
	User              *AuthenticatedUser
	Envelope          Envelope
	Transaction       int
}

// Authenticated reports whether a user has been established on this
// session via AUTH or XCLIENT LOGIN.
func (s *Session) Authenticated() bool {
	return s != nil && s.User != nil
}
