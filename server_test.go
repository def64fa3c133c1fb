package mailgate

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"
)

func testServer(t *testing.T, cb Callbacks) *Server {
	t.Helper()
	srv, err := New("mail.test").Callbacks(cb).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return srv
}

func testConnection(t *testing.T) (*Connection, net.Conn) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	conn := newConnection(serverSide, 4096)
	conn.setReady()
	t.Cleanup(func() { _ = clientSide.Close() })
	return conn, clientSide
}

func readReply(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

func TestFullTransaction(t *testing.T) {
	var gotBody string
	srv := testServer(t, Callbacks{
		OnData: func(ctx context.Context, s *Session, r io.Reader) (string, error) {
			b, err := io.ReadAll(r)
			gotBody = string(b)
			return "abc123", err
		},
	})
	conn, client := testConnection(t)
	clientReader := bufio.NewReader(client)

	go srv.dispatch(conn, "EHLO client.example.com")
	for {
		l := readReply(t, clientReader)
		if !strings.HasPrefix(l, "250-") {
			break
		}
	}

	go srv.dispatch(conn, "MAIL FROM:<alice@example.com>")
	if l := readReply(t, clientReader); !strings.HasPrefix(l, "250") {
		t.Fatalf("MAIL reply: %q", l)
	}

	go srv.dispatch(conn, "RCPT TO:<bob@example.com>")
	if l := readReply(t, clientReader); !strings.HasPrefix(l, "250") {
		t.Fatalf("RCPT reply: %q", l)
	}

	go srv.dispatch(conn, "DATA")
	if l := readReply(t, clientReader); !strings.HasPrefix(l, "354") {
		t.Fatalf("DATA reply: %q", l)
	}
	go func() {
		_, _ = client.Write([]byte("Subject: hi\r\n.\r\n"))
	}()
	if l := readReply(t, clientReader); !strings.HasPrefix(l, "250") {
		t.Fatalf("final reply: %q", l)
	}
	if gotBody != "Subject: hi\r\n" {
		t.Errorf("got body %q", gotBody)
	}
}

func TestRcptBeforeMailRejected(t *testing.T) {
	srv := testServer(t, Callbacks{})
	conn, client := testConnection(t)
	clientReader := bufio.NewReader(client)
	conn.hostNameAppearsAs = "client.example.com"

	go srv.dispatch(conn, "RCPT TO:<bob@example.com>")
	if l := readReply(t, clientReader); !strings.HasPrefix(l, "503") {
		t.Errorf("expected 503, got %q", l)
	}
}

func TestCommandBeforeHeloRejected(t *testing.T) {
	srv := testServer(t, Callbacks{})
	conn, client := testConnection(t)
	clientReader := bufio.NewReader(client)

	go srv.dispatch(conn, "MAIL FROM:<alice@example.com>")
	if l := readReply(t, clientReader); !strings.HasPrefix(l, "503") {
		t.Errorf("expected 503, got %q", l)
	}
}

func TestUnrecognizedCommandThreshold(t *testing.T) {
	srv := testServer(t, Callbacks{})
	conn, client := testConnection(t)
	clientReader := bufio.NewReader(client)

	for i := 0; i < 9; i++ {
		go srv.dispatch(conn, "BOGUS")
		if l := readReply(t, clientReader); !strings.HasPrefix(l, "500") {
			t.Fatalf("iteration %d: expected 500, got %q", i, l)
		}
	}
	if conn.isClosed() {
		t.Fatal("connection closed too early")
	}

	go srv.dispatch(conn, "BOGUS")
	if l := readReply(t, clientReader); !strings.HasPrefix(l, "500") {
		t.Fatalf("expected 500, got %q", l)
	}
	if l := readReply(t, clientReader); !strings.HasPrefix(l, "554") {
		t.Fatalf("expected 554, got %q", l)
	}
	if !conn.isClosed() {
		t.Fatal("expected connection to be closed after 10 unrecognized commands")
	}
}

func TestEarlyTalkerRejected(t *testing.T) {
	srv := testServer(t, Callbacks{})
	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()
	conn := newConnection(serverSide, 4096)
	clientReader := bufio.NewReader(clientSide)

	go srv.dispatch(conn, "EHLO too-soon.example.com")
	l := readReply(t, clientReader)
	if !strings.HasPrefix(l, "421") {
		t.Errorf("expected 421, got %q", l)
	}
	if !conn.isClosed() {
		t.Error("expected connection to be closed")
	}
}

func TestHTTPTrap(t *testing.T) {
	srv := testServer(t, Callbacks{})
	conn, client := testConnection(t)
	clientReader := bufio.NewReader(client)

	go srv.dispatch(conn, "GET / HTTP/1.1")
	l := readReply(t, clientReader)
	if !strings.HasPrefix(l, "554") {
		t.Errorf("expected 554, got %q", l)
	}
	if !conn.isClosed() {
		t.Error("expected connection to be closed")
	}
}

func TestRsetPreservesAuthenticatedUser(t *testing.T) {
	srv := testServer(t, Callbacks{})
	conn, client := testConnection(t)
	clientReader := bufio.NewReader(client)
	conn.hostNameAppearsAs = "client.example.com"
	conn.session.User = &AuthenticatedUser{Username: "alice"}

	go srv.dispatch(conn, "RSET")
	if l := readReply(t, clientReader); !strings.HasPrefix(l, "250") {
		t.Fatalf("got %q", l)
	}
	if !conn.session.Authenticated() {
		t.Error("expected authenticated user to survive RSET")
	}
}
