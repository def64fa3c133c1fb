package mailgate

import (
	"bufio"
	"context"
	"strings"
	"testing"
)

func TestMailSizeParamExceedsConfiguredMax(t *testing.T) {
	srv, err := New("mail.test").MaxMessageSize(100).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	conn, client := testConnection(t)
	clientReader := bufio.NewReader(client)
	conn.hostNameAppearsAs = "client.example.com"

	go srv.dispatch(conn, "MAIL FROM:<alice@example.com> SIZE=1000")
	if l := readReply(t, clientReader); !strings.HasPrefix(l, "552") {
		t.Fatalf("expected 552, got %q", l)
	}
	if conn.session.Envelope.MailFrom != nil {
		t.Error("MAIL FROM should not have been recorded")
	}
}

func TestRcptRejectsPastMaxRecipients(t *testing.T) {
	srv, err := New("mail.test").MaxRecipients(1).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	conn, client := testConnection(t)
	clientReader := bufio.NewReader(client)
	conn.hostNameAppearsAs = "client.example.com"

	go srv.dispatch(conn, "MAIL FROM:<alice@example.com>")
	if l := readReply(t, clientReader); !strings.HasPrefix(l, "250") {
		t.Fatalf("MAIL reply: %q", l)
	}

	go srv.dispatch(conn, "RCPT TO:<bob@example.com>")
	if l := readReply(t, clientReader); !strings.HasPrefix(l, "250") {
		t.Fatalf("first RCPT reply: %q", l)
	}

	go srv.dispatch(conn, "RCPT TO:<carol@example.com>")
	if l := readReply(t, clientReader); !strings.HasPrefix(l, "452") {
		t.Fatalf("expected 452, got %q", l)
	}
	if len(conn.session.Envelope.RcptTo) != 1 {
		t.Errorf("expected 1 recipient, got %d", len(conn.session.Envelope.RcptTo))
	}
}

func TestRcptDedupsByCaseInsensitiveAddress(t *testing.T) {
	srv := testServer(t, Callbacks{})
	conn, client := testConnection(t)
	clientReader := bufio.NewReader(client)
	conn.hostNameAppearsAs = "client.example.com"

	go srv.dispatch(conn, "MAIL FROM:<alice@example.com>")
	readReply(t, clientReader)

	go srv.dispatch(conn, "RCPT TO:<Bob@Example.com>")
	readReply(t, clientReader)

	go srv.dispatch(conn, "RCPT TO:<bob@example.com>")
	readReply(t, clientReader)

	if len(conn.session.Envelope.RcptTo) != 1 {
		t.Errorf("expected addresses to dedup, got %d entries", len(conn.session.Envelope.RcptTo))
	}
}

func TestOnHeloRejection(t *testing.T) {
	srv := testServer(t, Callbacks{
		OnHelo: func(ctx context.Context, s *Session) error {
			return Reject(CodeServiceUnavailable, "Error: this client is not welcome")
		},
	})
	conn, client := testConnection(t)
	clientReader := bufio.NewReader(client)

	go srv.dispatch(conn, "EHLO client.example.com")
	if l := readReply(t, clientReader); !strings.HasPrefix(l, "421") {
		t.Fatalf("expected 421, got %q", l)
	}
	if conn.hostNameAppearsAs == "" {
		t.Error("hostNameAppearsAs should still be recorded even if OnHelo rejects")
	}
}

func TestDataAtExactMaxSizeAccepted(t *testing.T) {
	body := strings.Repeat("a", 10)
	srv, err := New("mail.test").
		MaxMessageSize(int64(len(body))).
		Callbacks(Callbacks{}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	conn, client := testConnection(t)
	clientReader := bufio.NewReader(client)
	conn.hostNameAppearsAs = "client.example.com"

	go srv.dispatch(conn, "MAIL FROM:<alice@example.com>")
	readReply(t, clientReader)
	go srv.dispatch(conn, "RCPT TO:<bob@example.com>")
	readReply(t, clientReader)

	go srv.dispatch(conn, "DATA")
	if l := readReply(t, clientReader); !strings.HasPrefix(l, "354") {
		t.Fatalf("DATA reply: %q", l)
	}
	go func() {
		_, _ = client.Write([]byte(body + "\r\n.\r\n"))
	}()
	if l := readReply(t, clientReader); !strings.HasPrefix(l, "250") {
		t.Fatalf("expected 250 at exact max size, got %q", l)
	}
}

func TestDataOverMaxSizeRejected(t *testing.T) {
	srv, err := New("mail.test").MaxMessageSize(5).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	conn, client := testConnection(t)
	clientReader := bufio.NewReader(client)
	conn.hostNameAppearsAs = "client.example.com"

	go srv.dispatch(conn, "MAIL FROM:<alice@example.com>")
	readReply(t, clientReader)
	go srv.dispatch(conn, "RCPT TO:<bob@example.com>")
	readReply(t, clientReader)

	go srv.dispatch(conn, "DATA")
	readReply(t, clientReader)
	go func() {
		_, _ = client.Write([]byte("0123456789\r\n.\r\n"))
	}()
	if l := readReply(t, clientReader); !strings.HasPrefix(l, "552") {
		t.Fatalf("expected 552, got %q", l)
	}
}
