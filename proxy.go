package mailgate

import (
	"net"
	"strings"
)

// handleProxyHeader parses a PROXY protocol v1 header (as sent by
// HAProxy/ELB in front of the listener) and, if valid, marks the
// connection ready using the proxied client address rather than the TCP
// peer address (which belongs to the load balancer).
func (s *Server) handleProxyHeader(conn *Connection, line string) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "PROXY" {
		s.reply(conn, ResponseCommandNotRecognized("PROXY"))
		conn.close()
		return
	}

	switch fields[1] {
	case "UNKNOWN":
		// No reliable client address; keep the TCP peer address.
	case "TCP4", "TCP6":
		if len(fields) != 6 {
			s.reply(conn, ResponseCommandNotRecognized("PROXY"))
			conn.close()
			return
		}
		srcIP := net.ParseIP(fields[2])
		if srcIP == nil {
			s.reply(conn, ResponseCommandNotRecognized("PROXY"))
			conn.close()
			return
		}
		conn.remoteAddress = net.JoinHostPort(fields[2], fields[4])
		conn.session.RemoteAddress = conn.remoteAddress
		conn.clientHostname = formatFallbackHostname(conn.remoteAddress)
		conn.session.ClientHostname = conn.clientHostname
		s.resolveClientHostname(conn)
	default:
		s.reply(conn, ResponseCommandNotRecognized("PROXY"))
		conn.close()
		return
	}

	s.connectionReady(conn)
}
