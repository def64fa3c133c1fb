package mailgate

import "fmt"

// SMTPCode is an RFC 5321 three-digit reply code.
// 2yz success, 3yz continue, 4yz transient failure, 5yz permanent failure.
type SMTPCode int

const (
	CodeHelpMessage             SMTPCode = 214
	CodeServiceReady            SMTPCode = 220
	CodeServiceClosing          SMTPCode = 221
	CodeAuthSuccess             SMTPCode = 235
	CodeOK                      SMTPCode = 250
	CodeUserNotLocalWillForward SMTPCode = 251
	CodeCannotVRFY              SMTPCode = 252

	CodeAuthContinue   SMTPCode = 334
	CodeStartMailInput SMTPCode = 354

	CodeServiceUnavailable        SMTPCode = 421
	CodeLocalError                SMTPCode = 451
	CodeInsufficientStorage       SMTPCode = 452
	CodeUnableToAccommodateParams SMTPCode = 455

	CodeCommandUnrecognized    SMTPCode = 500
	CodeSyntaxError            SMTPCode = 501
	CodeCommandNotImplemented  SMTPCode = 502
	CodeBadSequence            SMTPCode = 503
	CodeParameterNotImpl       SMTPCode = 504
	CodeAuthRequired           SMTPCode = 530
	CodeAuthCredentialsInvalid SMTPCode = 535
	CodeEncryptionRequired     SMTPCode = 538
	CodeMailboxNotFound        SMTPCode = 550
	CodeUserNotLocalTryForward SMTPCode = 551
	CodeExceededStorage        SMTPCode = 552
	CodeTransactionFailed      SMTPCode = 554
	CodeParamsNotRecognized    SMTPCode = 555
)

// EnhancedCode is an RFC 3463/2034 "class.subject.detail" status code.
// Only the handful this engine actually attaches to a Response are named
// here; a Callbacks implementor building its own Response is free to set
// EnhancedCode directly with any value the RFC defines.
type EnhancedCode string

const (
	ESCSecurityError           EnhancedCode = "5.7.0"
	ESCAuthCredentialsInvalid  EnhancedCode = "5.7.8"
	ESCTempLocalError          EnhancedCode = "4.3.0"
	ESCMailSystemFull          EnhancedCode = "5.3.4"
	ESCTempTooManyRecipients   EnhancedCode = "4.5.3"
	ESCInvalidArgs             EnhancedCode = "5.5.4"
	ESCTempInvalidArgs         EnhancedCode = "4.5.4"
	ESCTempInsufficientStorage EnhancedCode = "4.3.1"
	ESCEncryptionRequired      EnhancedCode = "5.7.11"
)

// Response is one SMTP reply line, ready to be written to the wire by
// Connection.writeMultiline/Server.reply.
type Response struct {
	Code         SMTPCode
	EnhancedCode string
	Message      string
}

func (r Response) String() string {
	if r.EnhancedCode != "" {
		return fmt.Sprintf("%d %s %s", r.Code, r.EnhancedCode, r.Message)
	}
	return fmt.Sprintf("%d %s", r.Code, r.Message)
}

func (r Response) IsError() bool { return r.Code >= 400 }

func (r Response) IsSuccess() bool { return r.Code >= 200 && r.Code < 300 }

// ToError wraps an error-class Response as a Go error, for Callback
// implementors that want to treat a rejected Response like any other
// failure; a success or intermediate Response yields nil.
func (r Response) ToError() error {
	if !r.IsError() {
		return nil
	}
	return fmt.Errorf("SMTP %d: %s", r.Code, r.Message)
}

// domainResponse builds a Response whose text begins with the server's
// domain, per RFC 5321's requirement that the greeting/closing/unavailable
// replies name the domain as the first token of the message.
func domainResponse(code SMTPCode, domain, message string) Response {
	msg := domain
	if message != "" {
		msg = domain + " " + message
	}
	return Response{Code: code, Message: msg}
}

// ResponseServiceReady builds the 220 greeting banner.
func ResponseServiceReady(domain, message string) Response {
	return domainResponse(CodeServiceReady, domain, message)
}

// ResponseServiceClosing builds the 221 reply sent on QUIT.
func ResponseServiceClosing(domain, message string) Response {
	return domainResponse(CodeServiceClosing, domain, message)
}

// ResponseServiceUnavailable builds a 421 reply: early talkers, shutdown,
// flood thresholds, and any other "drop the connection now" path.
func ResponseServiceUnavailable(domain, message string) Response {
	return domainResponse(CodeServiceUnavailable, domain, message)
}

// ResponseOK builds a 250 success reply, optionally tagged with an
// enhanced code.
func ResponseOK(message, enhancedCode string) Response {
	return Response{Code: CodeOK, EnhancedCode: enhancedCode, Message: message}
}

// ResponseBadSequence builds a 503 reply for a command sent out of order.
func ResponseBadSequence(message string) Response {
	return Response{Code: CodeBadSequence, Message: message}
}

// ResponseSyntaxError builds a 501 reply for malformed command arguments.
func ResponseSyntaxError(message string) Response {
	return Response{Code: CodeSyntaxError, Message: message}
}

// ResponseCommandNotRecognized builds a 500 reply naming the offending verb.
func ResponseCommandNotRecognized(command string) Response {
	return Response{Code: CodeCommandUnrecognized, Message: fmt.Sprintf("Command not recognized: %s", command)}
}

// ResponseCommandNotImplemented builds a 502 reply naming the unsupported verb.
func ResponseCommandNotImplemented(command string) Response {
	return Response{Code: CodeCommandNotImplemented, Message: fmt.Sprintf("%s not implemented", command)}
}

// ResponseCannotVRFY builds the canned 252 VRFY reply this engine always
// sends: it never discloses whether a mailbox exists.
func ResponseCannotVRFY(message string) Response {
	if message == "" {
		message = "Cannot VRFY user, but will accept message and attempt delivery"
	}
	return Response{Code: CodeCannotVRFY, Message: message}
}

// ResponseAuthRequired builds a 530 reply for an envelope command attempted
// before AUTH succeeded.
func ResponseAuthRequired(message string) Response {
	if message == "" {
		message = "Authentication required"
	}
	return Response{Code: CodeAuthRequired, EnhancedCode: string(ESCSecurityError), Message: message}
}

// ResponseEncryptionRequired builds a 538 reply for an AUTH attempted in
// the clear when STARTTLS is available but hasn't been negotiated yet.
func ResponseEncryptionRequired(message string) Response {
	if message == "" {
		message = "Encryption required for requested authentication mechanism"
	}
	return Response{Code: CodeEncryptionRequired, EnhancedCode: string(ESCEncryptionRequired), Message: message}
}

// ResponseAuthCredentialsInvalid builds a 535 reply for a failed AUTH
// exchange.
func ResponseAuthCredentialsInvalid(message string) Response {
	if message == "" {
		message = "Authentication credentials invalid"
	}
	return Response{Code: CodeAuthCredentialsInvalid, EnhancedCode: string(ESCAuthCredentialsInvalid), Message: message}
}

// ResponseTransactionFailed builds a 554 reply for hard connection-ending
// failures (HTTP trap, abuse thresholds).
func ResponseTransactionFailed(message string, enhancedCode EnhancedCode) Response {
	return Response{Code: CodeTransactionFailed, EnhancedCode: string(enhancedCode), Message: message}
}

// ResponseLocalError builds a 451 reply for a server-side processing
// failure, including an idle-timeout disconnect.
func ResponseLocalError(message string) Response {
	return Response{Code: CodeLocalError, EnhancedCode: string(ESCTempLocalError), Message: message}
}

// ResponseExceededStorage builds a 552 reply for a message that exceeds
// the configured maximum size.
func ResponseExceededStorage(message string) Response {
	if message == "" {
		message = "Requested mail action aborted: exceeded storage allocation"
	}
	return Response{Code: CodeExceededStorage, EnhancedCode: string(ESCMailSystemFull), Message: message}
}

// The constructors below exist mainly so a Callbacks implementor returning
// a *CallbackError can build an RFC-shaped Response for situations only the
// callback can judge: whether a mailbox is local, whether a forward-path
// applies, or whether a MAIL/RCPT parameter extension it defines is
// acceptable. ResponseMailboxNotFound doubles as the XCLIENT handler's
// rejection for a disabled or already-locked ADDR.

// ResponseMailboxNotFound builds a 550 reply.
func ResponseMailboxNotFound(message string) Response {
	return Response{Code: CodeMailboxNotFound, Message: message}
}

// ResponseUserNotLocalWillForward builds a 251 reply carrying the
// forward-path the message will be relayed to.
func ResponseUserNotLocalWillForward(forwardPath string) Response {
	return Response{Code: CodeUserNotLocalWillForward, Message: fmt.Sprintf("User not local; will forward to <%s>", forwardPath)}
}

// ResponseUserNotLocalTryForward builds a 551 reply telling the client to
// retry against the given forward-path itself.
func ResponseUserNotLocalTryForward(forwardPath string) Response {
	return Response{Code: CodeUserNotLocalTryForward, Message: fmt.Sprintf("User not local; please try <%s>", forwardPath)}
}

// ResponseParamsNotRecognized builds a 555 reply for an unsupported
// MAIL/RCPT parameter.
func ResponseParamsNotRecognized(param string) Response {
	return Response{Code: CodeParamsNotRecognized, EnhancedCode: string(ESCInvalidArgs), Message: fmt.Sprintf("Parameter not recognized: %s", param)}
}

// ResponseUnableToAccommodateParams builds a transient 455 reply for a
// parameter value the server can't currently honor.
func ResponseUnableToAccommodateParams(message string) Response {
	return Response{Code: CodeUnableToAccommodateParams, EnhancedCode: string(ESCTempInvalidArgs), Message: message}
}

// ResponseInsufficientStorage builds a transient 452 reply distinct from
// ResponseExceededStorage: this one is for a callback's own backing store
// running out of room, not the message exceeding the configured size cap.
func ResponseInsufficientStorage(message string) Response {
	if message == "" {
		message = "Insufficient system storage"
	}
	return Response{Code: CodeInsufficientStorage, EnhancedCode: string(ESCTempInsufficientStorage), Message: message}
}
