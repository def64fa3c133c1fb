package mailgate

import "strings"

// addressCommands are the verbs that require a prior HELO/EHLO.
var addressCommands = map[string]bool{
	"MAIL": true, "RCPT": true, "DATA": true, "AUTH": true,
}

// envelopeCommands are the verbs that require authentication once AUTH is
// configured and the session hasn't authenticated.
var envelopeCommands = map[string]bool{
	"MAIL": true, "RCPT": true, "DATA": true,
}

func splitVerb(line string) (verb, args string) {
	verb, args, found := strings.Cut(line, " ")
	if !found {
		verb, args, found = strings.Cut(line, "\t")
	}
	if !found {
		return strings.ToUpper(strings.TrimSpace(line)), ""
	}
	return strings.ToUpper(strings.TrimSpace(verb)), strings.TrimSpace(args)
}

// dispatch routes one raw command line through the ordered gauntlet of
// readiness, trap, upgrade, continuation, and auth checks before finally
// invoking the matched handler.
func (s *Server) dispatch(conn *Connection, line string) {
	if !conn.isReady() {
		s.dispatchNotReady(conn, line)
		return
	}

	if httpTrapPattern.MatchString(line) {
		conn.logger.Warn("HTTP request sent to SMTP port, closing")
		s.reply(conn, ResponseTransactionFailed("HTTP requests not allowed here", ""))
		conn.close()
		return
	}

	if conn.upgrading {
		return
	}

	if conn.nextHandler != nil {
		h := conn.nextHandler
		conn.nextHandler = nil
		h(conn, line)
		return
	}

	verb, args := splitVerb(line)

	handler, ok := s.handlers[verb]
	if !ok {
		conn.unrecognizedCount++
		s.countDispatch(verb, "unrecognized")
		s.reply(conn, ResponseCommandNotRecognized(verb))
		if conn.unrecognizedCount >= 10 {
			conn.logger.Warn("closing: too many unrecognized commands")
			s.reply(conn, ResponseTransactionFailed("Error: too many unrecognized commands", ""))
			conn.close()
		}
		return
	}

	if s.authSupported() && verb != "AUTH" && !conn.session.Authenticated() {
		conn.unauthenticatedCount++
		if conn.unauthenticatedCount >= 10 {
			conn.logger.Warn("closing: too many unauthenticated commands")
			s.countDispatch(verb, "rejected")
			s.reply(conn, ResponseTransactionFailed("Error: too many unauthenticated commands", ""))
			conn.close()
			return
		}
	}

	if addressCommands[verb] && conn.hostNameAppearsAs == "" {
		s.countDispatch(verb, "rejected")
		s.reply(conn, ResponseBadSequence("Error: send HELO/EHLO first"))
		return
	}

	if envelopeCommands[verb] && s.authSupported() && !conn.session.Authenticated() {
		s.countDispatch(verb, "rejected")
		s.reply(conn, ResponseAuthRequired("Error: authentication required"))
		return
	}

	s.countDispatch(verb, "ok")
	handler(s, conn, line, args)
}

// countDispatch increments the CommandsDispatched collector, a no-op when
// metrics weren't configured.
func (s *Server) countDispatch(verb, outcome string) {
	if s.metrics != nil {
		s.metrics.CommandsDispatched.WithLabelValues(verb, outcome).Inc()
	}
}

func (s *Server) dispatchNotReady(conn *Connection, line string) {
	if s.config.UseProxy {
		if strings.HasPrefix(line, "PROXY") {
			s.handleProxyHeader(conn, line)
			return
		}
		s.reply(conn, Response{Code: CodeCommandUnrecognized, Message: "Invalid PROXY header"})
		conn.close()
		return
	}
	conn.logger.Warn("closing: early talker")
	s.reply(conn, ResponseServiceUnavailable(s.config.Name, "You talk too soon"))
	conn.close()
}
