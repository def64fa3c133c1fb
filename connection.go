package mailgate

import (
	"bufio"
	"crypto/tls"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/haldor/mailgate/wire"
)

// XClientKey is one of the attribute names carried by an XCLIENT command
// (the Postfix front-end handoff extension).
type XClientKey string

const (
	XClientName  XClientKey = "NAME"
	XClientAddr  XClientKey = "ADDR"
	XClientPort  XClientKey = "PORT"
	XClientProto XClientKey = "PROTO"
	XClientHelo  XClientKey = "HELO"
	XClientLogin XClientKey = "LOGIN"
)

// nextHandlerFunc is a one-shot continuation: when set on a Connection, the
// dispatcher routes the next raw line to it instead of through the normal
// command table. AUTH exchanges and other multi-line sub-protocols use this
// instead of a blocking nested read loop.
type nextHandlerFunc func(conn *Connection, line string)

// Connection is one accepted TCP (or TLS) connection and its SMTP session
// state. All mutable fields are guarded by mu since the grace timer,
// idle timer, and the read loop can touch them concurrently.
type Connection struct {
	id     string
	logger *slog.Logger

	mu       sync.Mutex
	raw      net.Conn
	reader   *bufio.Reader
	writer   *bufio.Writer
	secure   bool
	tlsState tls.ConnectionState

	remoteAddress  string
	clientHostname string

	ready     bool
	upgrading bool
	closed    bool

	hostNameAppearsAs string
	session           *Session

	unrecognizedCount    int
	unauthenticatedCount int
	transactionCounter   int

	xclient           map[XClientKey]string
	xclientAddrLocked bool

	nextHandler nextHandlerFunc

	idleTimer *time.Timer
	closeCh   chan struct{}
}

func newConnection(raw net.Conn, bufSize int) *Connection {
	c := &Connection{
		id:            newConnectionID(),
		raw:           raw,
		reader:        bufio.NewReaderSize(raw, bufSize),
		writer:        bufio.NewWriterSize(raw, bufSize),
		remoteAddress: raw.RemoteAddr().String(),
		xclient:       make(map[XClientKey]string),
		closeCh:       make(chan struct{}),
	}
	c.clientHostname = formatFallbackHostname(c.remoteAddress)
	c.session = &Session{
		ID:            c.id,
		RemoteAddress: c.remoteAddress,
	}
	c.logger = slog.Default().With(slog.String("conn_id", c.id), slog.String("remote_addr", c.remoteAddress))
	return c
}

func formatFallbackHostname(remoteAddress string) string {
	host, _, err := net.SplitHostPort(remoteAddress)
	if err != nil {
		host = remoteAddress
	}
	return "[" + host + "]"
}

// resetSession starts a new mail transaction, preserving the authenticated
// user and the identity established by HELO/EHLO and XCLIENT.
func (c *Connection) resetSession() {
	c.transactionCounter++
	prevUser := c.session.User
	c.session = &Session{
		ID:                c.id,
		RemoteAddress:     c.remoteAddress,
		ClientHostname:    c.clientHostname,
		HostNameAppearsAs: c.hostNameAppearsAs,
		User:              prevUser,
		Transaction:       c.transactionCounter,
	}
}

func (c *Connection) readLine(maxLen int) (string, error) {
	return wire.ReadCommandLine(c.reader, maxLen)
}

func (c *Connection) writeResponse(r Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.writer.WriteString(r.String()); err != nil {
		return err
	}
	if _, err := c.writer.WriteString("\r\n"); err != nil {
		return err
	}
	return c.writer.Flush()
}

// writeMultiline writes a multi-line EHLO-style reply: all but the last
// line use "code-text", the last uses "code text".
func (c *Connection) writeMultiline(code SMTPCode, lines []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, line := range lines {
		sep := byte('-')
		if i == len(lines)-1 {
			sep = ' '
		}
		if _, err := c.writer.WriteString(strconv.Itoa(int(code))); err != nil {
			return err
		}
		if err := c.writer.WriteByte(sep); err != nil {
			return err
		}
		if _, err := c.writer.WriteString(line); err != nil {
			return err
		}
		if _, err := c.writer.WriteString("\r\n"); err != nil {
			return err
		}
	}
	return c.writer.Flush()
}

// upgradeTLS replaces the raw connection and buffers after a completed
// STARTTLS handshake and records the negotiated state.
func (c *Connection) upgradeTLS(tlsConn *tls.Conn, bufSize int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw = tlsConn
	c.reader = bufio.NewReaderSize(tlsConn, bufSize)
	c.writer = bufio.NewWriterSize(tlsConn, bufSize)
	c.secure = true
	c.tlsState = tlsConn.ConnectionState()
}

func (c *Connection) isSecure() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.secure
}

func (c *Connection) setReady() {
	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()
}

func (c *Connection) isReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *Connection) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.mu.Unlock()
	close(c.closeCh)
	_ = c.writer.Flush()
	_ = c.raw.Close()
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// trace returns a point-in-time snapshot for Server.Snapshot / debug use.
func (c *Connection) trace() ConnectionTrace {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectionTrace{
		ID:                   c.id,
		RemoteAddress:        c.remoteAddress,
		ClientHostname:       c.clientHostname,
		HostNameAppearsAs:    c.hostNameAppearsAs,
		Secure:               c.secure,
		Ready:                c.ready,
		Authenticated:        c.session.Authenticated(),
		TransactionCount:     c.transactionCounter,
		UnrecognizedCount:    c.unrecognizedCount,
		UnauthenticatedCount: c.unauthenticatedCount,
	}
}
