package sasl

import (
	"bytes"
	"encoding/base64"
)

// Plain is the PLAIN mechanism (RFC 4616): authzid, authcid, and password
// travel in one base64 blob, NUL-separated. Only safe once STARTTLS has
// run — auth.go's 538 gate enforces that before a Plain is ever started.
type Plain struct {
	creds *Credentials
}

func NewPlain() *Plain {
	return &Plain{}
}

func (p *Plain) Name() string { return "PLAIN" }

func (p *Plain) Start(initialResponse string) (challenge string, done bool, err error) {
	if initialResponse == "" {
		return "", false, nil
	}
	return p.decode(initialResponse)
}

func (p *Plain) Next(response string) (challenge string, done bool, err error) {
	return p.decode(response)
}

func (p *Plain) decode(response string) (challenge string, done bool, err error) {
	if response == "*" {
		return "", true, ErrAuthenticationCancelled
	}

	raw, err := base64.StdEncoding.DecodeString(response)
	if err != nil {
		return "", true, ErrInvalidBase64
	}

	parts := bytes.Split(raw, []byte{0})
	if len(parts) != 3 {
		return "", true, ErrInvalidFormat
	}
	authzid, authcid, passwd := string(parts[0]), string(parts[1]), string(parts[2])
	if authcid == "" {
		return "", true, ErrInvalidFormat
	}

	p.creds = &Credentials{
		AuthorizationID:  authzid,
		AuthenticationID: authcid,
		Password:         passwd,
	}
	return "", true, nil
}

func (p *Plain) Credentials() *Credentials {
	return p.creds
}
