package mailgate

import (
	"context"
	"strings"

	"github.com/haldor/mailgate/sasl"
)

// defaultSASLMechanisms returns the mechanism factories a Server can
// advertise via AuthMethods.
func defaultSASLMechanisms() map[string]func() sasl.Mechanism {
	return map[string]func() sasl.Mechanism{
		"PLAIN": func() sasl.Mechanism { return sasl.NewPlain() },
		"LOGIN": func() sasl.Mechanism { return sasl.NewLogin() },
	}
}

func handleAUTH(s *Server, conn *Connection, line, args string) {
	if s.certStore != nil && !s.config.HideSTARTTLS && !conn.isSecure() {
		s.reply(conn, ResponseEncryptionRequired(""))
		return
	}
	if conn.session.Authenticated() {
		s.reply(conn, ResponseBadSequence("Error: already authenticated"))
		return
	}

	mechName, initial, _ := strings.Cut(args, " ")
	mechName = strings.ToUpper(strings.TrimSpace(mechName))
	initial = strings.TrimSpace(initial)

	if !containsFold(s.config.AuthMethods, mechName) {
		s.reply(conn, Response{Code: CodeParameterNotImpl, Message: "Error: unrecognized authentication type"})
		return
	}
	factory, ok := s.sasl[mechName]
	if !ok {
		s.reply(conn, Response{Code: CodeParameterNotImpl, Message: "Error: unrecognized authentication type"})
		return
	}

	mech := factory()
	challenge, done, err := mech.Start(initial)
	s.continueAuth(conn, mechName, mech, challenge, done, err)
}

// continueAuth advances a SASL exchange: it either finishes the exchange
// (validating credentials and reporting the result) or sends the next
// base64 challenge and arms conn.nextHandler for the client's reply.
func (s *Server) continueAuth(conn *Connection, mechName string, mech sasl.Mechanism, challenge string, done bool, err error) {
	if err != nil {
		s.finishAuth(conn, mechName, nil, err)
		return
	}
	if done {
		s.finishAuth(conn, mechName, mech.Credentials(), nil)
		return
	}

	s.reply(conn, Response{Code: CodeAuthContinue, Message: challengeText(challenge)})
	conn.nextHandler = func(conn *Connection, line string) {
		challenge, done, err := mech.Next(line)
		s.continueAuth(conn, mechName, mech, challenge, done, err)
	}
}

func challengeText(challenge string) string {
	if challenge == "" {
		return " "
	}
	return challenge
}

func (s *Server) finishAuth(conn *Connection, mechName string, creds *sasl.Credentials, mechErr error) {
	if mechErr != nil {
		if s.metrics != nil {
			s.metrics.AuthAttempts.WithLabelValues(mechName, "error").Inc()
		}
		conn.logger.Warn("AUTH mechanism error", "mechanism", mechName, "err", mechErr)
		s.reply(conn, ResponseAuthCredentialsInvalid("Error: authentication failed"))
		return
	}

	if s.callbacks.Authenticate == nil {
		if s.metrics != nil {
			s.metrics.AuthAttempts.WithLabelValues(mechName, "rejected").Inc()
		}
		s.reply(conn, ResponseAuthCredentialsInvalid(""))
		return
	}

	user, err := s.callbacks.Authenticate(context.Background(), mechName, creds.Identity(), creds.Password)
	if err != nil || user == nil {
		if s.metrics != nil {
			s.metrics.AuthAttempts.WithLabelValues(mechName, "rejected").Inc()
		}
		conn.logger.Info("AUTH rejected", "mechanism", mechName, "identity", creds.Identity())
		s.reply(conn, ResponseAuthCredentialsInvalid(""))
		return
	}

	user.Mechanism = mechName
	conn.session.User = user
	conn.unauthenticatedCount = 0
	if s.metrics != nil {
		s.metrics.AuthAttempts.WithLabelValues(mechName, "success").Inc()
	}
	conn.logger.Info("AUTH succeeded", "mechanism", mechName, "username", user.Username)
	s.reply(conn, Response{Code: CodeAuthSuccess, Message: "Authentication successful"})
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
