package mailgate

import "strings"

var xclientKeys = map[XClientKey]bool{
	XClientName: true, XClientAddr: true, XClientPort: true,
	XClientProto: true, XClientHelo: true, XClientLogin: true,
}

// xclientUnavailable values mean "the front end has no value for this
// attribute"; the key is still valid but has no effect when applied.
func xclientUnavailable(v string) bool {
	return v == "[UNAVAILABLE]" || v == "[TEMPUNAVAIL]"
}

// handleXCLIENT implements the Postfix XCLIENT extension: a trusted
// front-end hands off the real client identity after having already done
// its own connection-level checks. All attributes are validated before any
// of them is applied, so a malformed command never leaves the connection
// half-updated.
func handleXCLIENT(s *Server, conn *Connection, line, args string) {
	if !s.config.UseXClient {
		s.reply(conn, ResponseMailboxNotFound("Error: XCLIENT not permitted"))
		return
	}
	if conn.xclientAddrLocked {
		s.reply(conn, ResponseMailboxNotFound("Error: XCLIENT ADDR already applied"))
		return
	}
	if conn.session.Envelope.MailFrom != nil {
		s.reply(conn, ResponseBadSequence("Error: transaction in progress"))
		return
	}

	attrs := make(map[XClientKey]string)
	for _, tok := range strings.Fields(args) {
		key, val, ok := strings.Cut(tok, "=")
		if !ok {
			s.reply(conn, ResponseSyntaxError("Error: malformed XCLIENT attribute"))
			return
		}
		k := XClientKey(strings.ToUpper(key))
		if !xclientKeys[k] {
			s.reply(conn, ResponseSyntaxError("Error: unknown XCLIENT attribute "+string(k)))
			return
		}
		attrs[k] = val
	}
	if len(attrs) == 0 {
		s.reply(conn, ResponseSyntaxError("Syntax: XCLIENT ATTR=VALUE ..."))
		return
	}

	for k, v := range attrs {
		conn.xclient[k] = v
	}

	if v, ok := attrs[XClientName]; ok {
		if xclientUnavailable(v) {
			conn.clientHostname = formatFallbackHostname(conn.remoteAddress)
		} else {
			conn.clientHostname = v
		}
	}
	if v, ok := attrs[XClientAddr]; ok && !xclientUnavailable(v) {
		conn.remoteAddress = v
		conn.xclientAddrLocked = true
		conn.hostNameAppearsAs = ""
	}
	if v, ok := attrs[XClientHelo]; ok && !xclientUnavailable(v) {
		conn.hostNameAppearsAs = strings.ToLower(v)
	}
	if v, ok := attrs[XClientLogin]; ok && !xclientUnavailable(v) && v != "" {
		conn.session.User = &AuthenticatedUser{Username: v, Mechanism: "XCLIENT"}
	} else if ok {
		conn.session.User = nil
	}

	conn.resetSession()

	banner := "ESMTP ready"
	if s.config.Banner != "" {
		banner = "ESMTP " + s.config.Banner
	}
	s.reply(conn, ResponseServiceReady(s.config.Name, banner))
}
