package mailgate

import (
	"bufio"
	"strings"
	"testing"
)

func TestStartTLSSyntaxError(t *testing.T) {
	srv := testServer(t, Callbacks{})
	conn, client := testConnection(t)
	clientReader := bufio.NewReader(client)

	go srv.dispatch(conn, "STARTTLS now")
	if l := readReply(t, clientReader); !strings.HasPrefix(l, "501") {
		t.Fatalf("expected 501, got %q", l)
	}
}

func TestStartTLSUnavailableWithoutCertStore(t *testing.T) {
	srv := testServer(t, Callbacks{})
	conn, client := testConnection(t)
	clientReader := bufio.NewReader(client)

	go srv.dispatch(conn, "STARTTLS")
	if l := readReply(t, clientReader); !strings.HasPrefix(l, "451") {
		t.Fatalf("expected 451, got %q", l)
	}
}

func TestStartTLSAlreadySecureRejected(t *testing.T) {
	srv, err := New("mail.test").CertStore(fakeCertStore{}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	conn, client := testConnection(t)
	clientReader := bufio.NewReader(client)
	conn.secure = true

	go srv.dispatch(conn, "STARTTLS")
	if l := readReply(t, clientReader); !strings.HasPrefix(l, "554") {
		t.Fatalf("expected 554, got %q", l)
	}
}
