package mailgate

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"sync"
	"time"

	"github.com/haldor/mailgate/metrics"
	"github.com/haldor/mailgate/resolver"
	"github.com/haldor/mailgate/sasl"
	"github.com/prometheus/client_golang/prometheus"
)

// CertStore resolves the TLS certificate to present for a given SNI
// server name, falling back to "default" when the client sends none or
// names an unknown host.
type CertStore interface {
	Certificate(serverName string) (*tls.Certificate, error)
}

// staticCertStore is the common case: one certificate for every name.
type staticCertStore struct {
	cert *tls.Certificate
}

func (s staticCertStore) Certificate(string) (*tls.Certificate, error) {
	if s.cert == nil {
		return nil, ErrNoCertificate
	}
	return s.cert, nil
}

// ServerConfig holds the static configuration for a Server.
type ServerConfig struct {
	Name             string
	Banner           string
	Addr             string
	Size             int64
	AuthMethods      []string
	DisabledCommands map[string]bool
	HideSTARTTLS     bool
	UseXClient       bool
	UseProxy         bool
	Secure           bool
	MaxClients       int
	MaxRecipients    int
	MaxLineLength    int
	BufferSize       int
	SocketTimeout    time.Duration
	ReadyGracePeriod time.Duration
}

func defaultConfig(name string) ServerConfig {
	return ServerConfig{
		Name:             name,
		MaxClients:       1000,
		MaxRecipients:    100,
		MaxLineLength:    2048,
		BufferSize:       4096,
		SocketTimeout:    60 * time.Second,
		ReadyGracePeriod: 100 * time.Millisecond,
		DisabledCommands: make(map[string]bool),
	}
}

// Server is an SMTP server: the accept loop, the per-connection dispatch
// table, and the configuration and collaborators every Connection shares.
type Server struct {
	config    ServerConfig
	callbacks Callbacks
	certStore CertStore
	resolver  resolver.Resolver
	logger    *slog.Logger
	metrics   *metrics.Collectors
	sasl      map[string]func() sasl.Mechanism

	handlers map[string]handlerFunc

	mu        sync.Mutex
	listener  net.Listener
	conns     map[string]*Connection
	closed    bool
	closeOnce sync.Once
}

type handlerFunc func(s *Server, conn *Connection, line, args string)

// httpTrapPattern matches the request line of a stray HTTP client talking
// to the SMTP port.
var httpTrapPattern = regexp.MustCompile(`(?i)^(GET|POST|HEAD|PUT|DELETE|OPTIONS|TRACE|CONNECT)\s+\S+\s+HTTP/\d`)

// New begins building a Server advertising name in its greeting and EHLO
// response.
func New(name string) *Builder {
	return &Builder{config: defaultConfig(name)}
}

// Builder assembles a Server via chained setters.
type Builder struct {
	config   ServerConfig
	callbacks Callbacks
	certStore CertStore
	resolver  resolver.Resolver
	logger    *slog.Logger
	registry  prometheus.Registerer
}

func (b *Builder) Addr(addr string) *Builder {
	b.config.Addr = addr
	return b
}

func (b *Builder) Banner(banner string) *Builder {
	b.config.Banner = banner
	return b
}

func (b *Builder) MaxMessageSize(size int64) *Builder {
	b.config.Size = size
	return b
}

func (b *Builder) MaxClients(n int) *Builder {
	b.config.MaxClients = n
	return b
}

func (b *Builder) MaxRecipients(n int) *Builder {
	b.config.MaxRecipients = n
	return b
}

func (b *Builder) SocketTimeout(d time.Duration) *Builder {
	b.config.SocketTimeout = d
	return b
}

func (b *Builder) Auth(methods []string) *Builder {
	b.config.AuthMethods = methods
	return b
}

func (b *Builder) DisableCommand(verb string) *Builder {
	if b.config.DisabledCommands == nil {
		b.config.DisabledCommands = make(map[string]bool)
	}
	b.config.DisabledCommands[verb] = true
	return b
}

func (b *Builder) HideSTARTTLS(hide bool) *Builder {
	b.config.HideSTARTTLS = hide
	return b
}

func (b *Builder) UseXClient(use bool) *Builder {
	b.config.UseXClient = use
	return b
}

func (b *Builder) UseProxy(use bool) *Builder {
	b.config.UseProxy = use
	return b
}

// Secure marks the listener as TLS-from-the-first-byte (SMTPS on 465)
// rather than plaintext-with-STARTTLS.
func (b *Builder) Secure(secure bool) *Builder {
	b.config.Secure = secure
	return b
}

func (b *Builder) TLSCertificate(cert *tls.Certificate) *Builder {
	b.certStore = staticCertStore{cert: cert}
	return b
}

func (b *Builder) CertStore(store CertStore) *Builder {
	b.certStore = store
	return b
}

func (b *Builder) Resolver(r resolver.Resolver) *Builder {
	b.resolver = r
	return b
}

func (b *Builder) Logger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) Metrics(reg prometheus.Registerer) *Builder {
	b.registry = reg
	return b
}

func (b *Builder) Callbacks(cb Callbacks) *Builder {
	b.callbacks = cb
	return b
}

// Build finalizes the Server and constructs its dispatch table.
func (b *Builder) Build() (*Server, error) {
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.resolver == nil {
		b.resolver = resolver.NewStdResolver()
	}
	if b.config.Secure && b.certStore == nil {
		return nil, ErrNoCertificate
	}

	var collectors *metrics.Collectors
	if b.registry != nil {
		collectors = metrics.NewCollectors("mailgate", b.registry)
	}

	s := &Server{
		config:    b.config,
		callbacks: b.callbacks,
		certStore: b.certStore,
		resolver:  b.resolver,
		logger:    b.logger,
		metrics:   collectors,
		sasl:      defaultSASLMechanisms(),
		conns:     make(map[string]*Connection),
	}
	s.handlers = buildHandlerTable(s.config.DisabledCommands)
	return s, nil
}

// ListenAndServe accepts connections on s.config.Addr until Close is
// called.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Close is called.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	for {
		raw, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return ErrServerClosed
			}
			return err
		}
		go s.handleRawConn(raw)
	}
}

// Close stops accepting new connections and closes every open Connection.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		ln := s.listener
		conns := make([]*Connection, 0, len(s.conns))
		for _, c := range s.conns {
			conns = append(conns, c)
		}
		s.mu.Unlock()

		if ln != nil {
			err = ln.Close()
		}
		for _, c := range conns {
			c.close()
		}
	})
	return err
}

// Shutdown stops accepting new connections, sends every live connection a
// 421 goodbye, and waits for them to close on their own, up to ctx's
// deadline. A connection that hasn't closed when ctx expires is closed
// forcibly.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	ln := s.listener
	conns := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}

	for _, c := range conns {
		_ = c.raw.SetWriteDeadline(time.Now().Add(5 * time.Second))
		s.reply(c, ResponseServiceUnavailable(s.config.Name, fmt.Sprintf("Service shutting down [%s]", c.id)))
	}

	done := make(chan struct{})
	go func() {
		for {
			s.mu.Lock()
			n := len(s.conns)
			s.mu.Unlock()
			if n == 0 {
				close(done)
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
		}
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, c := range conns {
			c.close()
		}
		return ctx.Err()
	}
}

// Snapshot returns a point-in-time trace for a live connection by ID, or
// false if no such connection is open.
func (s *Server) Snapshot(id string) (ConnectionTrace, bool) {
	s.mu.Lock()
	c, ok := s.conns[id]
	s.mu.Unlock()
	if !ok {
		return ConnectionTrace{}, false
	}
	return c.trace(), true
}

func (s *Server) handleRawConn(raw net.Conn) {
	s.mu.Lock()
	atCapacity := len(s.conns) >= s.config.MaxClients && s.config.MaxClients > 0
	s.mu.Unlock()
	if atCapacity {
		if s.metrics != nil {
			s.metrics.ConnectionsRejected.WithLabelValues("max_clients").Inc()
		}
		s.logger.Warn("connection rejected: at capacity", "remote_addr", raw.RemoteAddr())
		fmt.Fprintf(raw, "421 %s Too many connections, try again later\r\n", s.config.Name)
		_ = raw.Close()
		return
	}

	if s.config.Secure {
		cert, err := s.certStore.Certificate("default")
		if err != nil {
			s.logger.Error("no certificate available for implicit TLS", "err", err)
			_ = raw.Close()
			return
		}
		tlsConn := tls.Server(raw, &tls.Config{
			GetCertificate: s.sniCertificate,
			Certificates:   []tls.Certificate{*cert},
		})
		if err := tlsConn.Handshake(); err != nil {
			s.logger.Warn("implicit TLS handshake failed", "remote_addr", raw.RemoteAddr(), "err", err)
			_ = raw.Close()
			return
		}
		raw = tlsConn
	}

	conn := newConnection(raw, s.config.BufferSize)
	conn.logger = s.logger.With(slog.String("conn_id", conn.id), slog.String("remote_addr", conn.remoteAddress))
	conn.session.ClientHostname = conn.clientHostname
	if s.config.Secure {
		conn.secure = true
	}
	if !s.config.UseProxy {
		s.resolveClientHostname(conn)
	}

	s.mu.Lock()
	s.conns[conn.id] = conn
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ConnectionsAccepted.Inc()
	}
	conn.logger.Info("connection accepted", "secure", conn.secure, "client_hostname", conn.clientHostname)

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn.id)
		s.mu.Unlock()
		conn.close()
		conn.logger.Info("connection closed")
	}()

	s.runConnection(conn)
}

// resolveClientHostname replaces conn's bracketed-IP placeholder with the
// client's PTR name, if one resolves within a bounded timeout. A lookup
// failure or empty answer just leaves the "[ip]" fallback in place.
func (s *Server) resolveClientHostname(conn *Connection) {
	host, _, err := net.SplitHostPort(conn.remoteAddress)
	if err != nil {
		host = conn.remoteAddress
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	name, err := s.resolver.ReverseLookup(ctx, ip)
	if err != nil || name == "" {
		return
	}
	conn.clientHostname = name
	conn.session.ClientHostname = name
}

func (s *Server) sniCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	name := hello.ServerName
	if name == "" {
		name = "default"
	}
	cert, err := s.certStore.Certificate(name)
	if err != nil {
		cert, err = s.certStore.Certificate("default")
	}
	return cert, err
}

func (s *Server) runConnection(conn *Connection) {
	if !s.config.UseProxy {
		time.AfterFunc(s.config.ReadyGracePeriod, func() {
			if !conn.isClosed() && !conn.isReady() {
				s.connectionReady(conn)
			}
		})
	}

	for {
		if s.config.SocketTimeout > 0 {
			_ = conn.raw.SetReadDeadline(time.Now().Add(s.config.SocketTimeout))
		}
		line, err := conn.readLine(s.config.MaxLineLength)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				conn.logger.Info("closing: idle timeout")
				s.reply(conn, ResponseLocalError("Timeout - closing connection"))
				conn.close()
				return
			}
			conn.logger.Debug("connection read loop exiting", "err", err)
			return
		}
		s.dispatch(conn, line)
		if conn.isClosed() {
			return
		}
	}
}

func (s *Server) connectionReady(conn *Connection) {
	conn.setReady()
	if s.callbacks.OnConnect != nil {
		if err := s.callbacks.OnConnect(context.Background(), conn.session); err != nil {
			conn.logger.Info("connection rejected by OnConnect", "err", err)
			s.reply(conn, ResponseServiceUnavailable(s.config.Name, "Service unavailable"))
			conn.close()
			return
		}
	}
	banner := "ESMTP ready"
	if s.config.Banner != "" {
		banner = "ESMTP " + s.config.Banner
	}
	s.reply(conn, ResponseServiceReady(s.config.Name, banner))
}

func (s *Server) reply(conn *Connection, r Response) {
	_ = conn.writeResponse(r)
}

func (s *Server) authSupported() bool {
	return len(s.config.AuthMethods) > 0
}
