package mailgate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/haldor/mailgate/wire"
)

// buildHandlerTable constructs the verb dispatch table, omitting any verb
// named in disabled so it falls through dispatch's "not recognized" path.
func buildHandlerTable(disabled map[string]bool) map[string]handlerFunc {
	all := map[string]handlerFunc{
		"EHLO":     handleEHLO,
		"HELO":     handleHELO,
		"MAIL":     handleMAIL,
		"RCPT":     handleRCPT,
		"DATA":     handleDATA,
		"RSET":     handleRSET,
		"NOOP":     handleNOOP,
		"HELP":     handleHELP,
		"VRFY":     handleVRFY,
		"QUIT":     handleQUIT,
		"AUTH":     handleAUTH,
		"STARTTLS": handleSTARTTLS,
		"XCLIENT":  handleXCLIENT,
		"WIZ":      handleStubCommand,
		"SHELL":    handleStubCommand,
		"KILL":     handleStubCommand,
	}
	table := make(map[string]handlerFunc, len(all))
	for verb, fn := range all {
		if disabled[verb] {
			continue
		}
		table[verb] = fn
	}
	return table
}

func handleEHLO(s *Server, conn *Connection, line, args string) {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		s.reply(conn, ResponseSyntaxError("Syntax: EHLO <hostname>"))
		return
	}
	conn.hostNameAppearsAs = strings.ToLower(fields[0])
	conn.resetSession()

	if s.callbacks.OnHelo != nil {
		if err := s.callbacks.OnHelo(context.Background(), conn.session); err != nil {
			s.replyCallbackError(conn, err, CodeServiceUnavailable)
			return
		}
	}

	lines := []string{fmt.Sprintf("Nice to meet you %s", conn.clientHostname)}
	for _, ext := range intrinsicFeatures {
		lines = append(lines, string(ext))
	}
	if s.authSupported() {
		lines = append(lines, "AUTH "+strings.Join(s.config.AuthMethods, " "))
	}
	if !conn.isSecure() && s.certStore != nil && !s.config.HideSTARTTLS {
		lines = append(lines, string(ExtSTARTTLS))
	}
	if s.config.Size > 0 {
		lines = append(lines, fmt.Sprintf("%s %d", ExtSize, s.config.Size))
	}
	if s.config.UseXClient {
		if _, set := conn.xclient[XClientAddr]; !set {
			lines = append(lines, "XCLIENT NAME ADDR PORT PROTO HELO LOGIN")
		}
	}
	_ = conn.writeMultiline(CodeOK, lines)
}

func handleHELO(s *Server, conn *Connection, line, args string) {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		s.reply(conn, ResponseSyntaxError("Syntax: HELO <hostname>"))
		return
	}
	conn.hostNameAppearsAs = strings.ToLower(fields[0])
	conn.resetSession()

	if s.callbacks.OnHelo != nil {
		if err := s.callbacks.OnHelo(context.Background(), conn.session); err != nil {
			s.replyCallbackError(conn, err, CodeServiceUnavailable)
			return
		}
	}

	s.reply(conn, ResponseOK(fmt.Sprintf("Nice to meet you %s", conn.clientHostname), ""))
}

func handleMAIL(s *Server, conn *Connection, line, args string) {
	rec, err := parseAddressCommand(line, "MAIL FROM")
	if err != nil {
		s.reply(conn, ResponseSyntaxError("Syntax: MAIL FROM:<address>"))
		return
	}
	if conn.session.Envelope.MailFrom != nil {
		s.reply(conn, ResponseBadSequence("Error: nested MAIL command"))
		return
	}
	if sizeStr, ok := rec.Get("SIZE"); ok {
		if n, cerr := strconv.ParseInt(sizeStr, 10, 64); cerr == nil && s.config.Size > 0 && n > s.config.Size {
			s.reply(conn, ResponseExceededStorage("Error: message exceeds fixed maximum message size"))
			return
		}
	}

	if s.callbacks.OnMailFrom != nil {
		if err := s.callbacks.OnMailFrom(context.Background(), conn.session, rec); err != nil {
			s.replyCallbackError(conn, err, CodeMailboxNotFound)
			return
		}
	}

	conn.session.Envelope.MailFrom = &rec
	s.reply(conn, ResponseOK("Accepted", ""))
}

func handleRCPT(s *Server, conn *Connection, line, args string) {
	rec, err := parseAddressCommand(line, "RCPT TO")
	if err != nil {
		s.reply(conn, ResponseSyntaxError("Syntax: RCPT TO:<address>"))
		return
	}
	if conn.session.Envelope.MailFrom == nil {
		s.reply(conn, ResponseBadSequence("Error: need MAIL command first"))
		return
	}
	if rec.Address == "" {
		s.reply(conn, ResponseSyntaxError("Error: RCPT TO cannot be empty"))
		return
	}
	if s.config.MaxRecipients > 0 && len(conn.session.Envelope.RcptTo) >= s.config.MaxRecipients {
		s.reply(conn, Response{Code: CodeInsufficientStorage, EnhancedCode: string(ESCTempTooManyRecipients), Message: "Error: too many recipients"})
		return
	}

	if s.callbacks.OnRcptTo != nil {
		if err := s.callbacks.OnRcptTo(context.Background(), conn.session, rec); err != nil {
			s.replyCallbackError(conn, err, CodeMailboxNotFound)
			return
		}
	}

	conn.session.Envelope.addRecipient(rec)
	s.reply(conn, ResponseOK("Accepted", ""))
}

func handleDATA(s *Server, conn *Connection, line, args string) {
	if len(conn.session.Envelope.RcptTo) == 0 {
		s.reply(conn, ResponseBadSequence("Error: need RCPT command first"))
		return
	}

	s.reply(conn, Response{Code: CodeStartMailInput, Message: "Start mail input; end with <CRLF>.<CRLF>"})
	s.streamDataAndReply(conn)
}

func handleRSET(s *Server, conn *Connection, line, args string) {
	conn.resetSession()
	s.reply(conn, ResponseOK("Flushed", ""))
}

func handleNOOP(s *Server, conn *Connection, line, args string) {
	s.reply(conn, ResponseOK("OK", ""))
}

func handleHELP(s *Server, conn *Connection, line, args string) {
	s.reply(conn, Response{Code: CodeHelpMessage, Message: "See RFC 5321"})
}

func handleVRFY(s *Server, conn *Connection, line, args string) {
	s.reply(conn, ResponseCannotVRFY(""))
}

func handleQUIT(s *Server, conn *Connection, line, args string) {
	s.reply(conn, ResponseServiceClosing(s.config.Name, "closing connection"))
	conn.close()
}

func handleStubCommand(s *Server, conn *Connection, line, args string) {
	verb, _ := splitVerb(line)
	s.reply(conn, ResponseCommandNotImplemented(verb))
}

// replyCallbackError sends the response a Callbacks hook requested via
// *CallbackError, falling back to defaultCode with the error's message.
func (s *Server) replyCallbackError(conn *Connection, err error, defaultCode SMTPCode) {
	if ce, ok := err.(*CallbackError); ok {
		s.reply(conn, Response{Code: ce.Code, EnhancedCode: string(ce.EnhancedCode), Message: ce.Message})
		return
	}
	s.reply(conn, Response{Code: defaultCode, Message: err.Error()})
}

// streamDataAndReply drains the DATA body from the wire while concurrently
// letting the OnData callback consume it, then replies only once both the
// wire feed and the callback have finished, per DATA's two-part completion.
func (s *Server) streamDataAndReply(conn *Connection) {
	pr, pw := io.Pipe()

	type callbackResult struct {
		queueID string
		err     error
	}
	done := make(chan callbackResult, 1)

	go func() {
		if s.callbacks.OnData == nil {
			var buf bytes.Buffer
			_, _ = buf.ReadFrom(pr)
			done <- callbackResult{}
			return
		}
		id, err := s.callbacks.OnData(context.Background(), conn.session, pr)
		done <- callbackResult{queueID: id, err: err}
	}()

	result, streamErr := wire.StreamData(conn.reader, pw, s.config.Size)
	_ = pw.CloseWithError(streamErr)
	cb := <-done

	if s.metrics != nil {
		s.metrics.DataBytes.Observe(float64(result.DataBytes))
	}

	if streamErr != nil {
		conn.logger.Warn("DATA stream error", "err", streamErr)
		conn.close()
		return
	}
	if result.Exceeded {
		conn.logger.Info("DATA exceeded max message size", "bytes", result.DataBytes)
		s.reply(conn, ResponseExceededStorage("Error: message exceeds fixed maximum message size"))
		conn.resetSession()
		return
	}
	if cb.err != nil {
		conn.logger.Info("DATA rejected by OnData", "err", cb.err)
		s.replyCallbackError(conn, cb.err, CodeTransactionFailed)
		conn.resetSession()
		return
	}

	msg := "OK: message queued"
	if cb.queueID != "" {
		msg = "OK: queued as " + cb.queueID
	}
	conn.logger.Info("message accepted", "bytes", result.DataBytes, "queue_id", cb.queueID, "rcpt_count", len(conn.session.Envelope.RcptTo))
	s.reply(conn, ResponseOK(msg, ""))
	conn.resetSession()
}
