package sasl

import "encoding/base64"

const (
	loginAwaitingUsername = iota
	loginAwaitingPassword
	loginDone
)

// Base64 "Username:"/"Password:" challenge prompts, per the de facto LOGIN
// mechanism most clients expect verbatim.
const (
	loginChallengeUsername = "VXNlcm5hbWU6"
	loginChallengePassword = "UGFzc3dvcmQ6"
)

// Login is the LOGIN mechanism: username and password arrive as two
// separate base64 lines rather than PLAIN's single blob. Deprecated by
// clients in favor of PLAIN, but still advertised for legacy compatibility.
type Login struct {
	state    int
	username string
	creds    *Credentials
}

func NewLogin() *Login {
	return &Login{state: loginAwaitingUsername}
}

func (l *Login) Name() string { return "LOGIN" }

func (l *Login) Start(initialResponse string) (challenge string, done bool, err error) {
	l.state = loginAwaitingUsername
	return loginChallengeUsername, false, nil
}

func (l *Login) Next(response string) (challenge string, done bool, err error) {
	if response == "*" {
		l.state = loginDone
		return "", true, ErrAuthenticationCancelled
	}

	switch l.state {
	case loginAwaitingUsername:
		decoded, err := base64.StdEncoding.DecodeString(response)
		if err != nil {
			l.state = loginDone
			return "", true, ErrInvalidBase64
		}
		l.username = string(decoded)
		l.state = loginAwaitingPassword
		return loginChallengePassword, false, nil

	case loginAwaitingPassword:
		decoded, err := base64.StdEncoding.DecodeString(response)
		if err != nil {
			l.state = loginDone
			return "", true, ErrInvalidBase64
		}
		l.creds = &Credentials{AuthenticationID: l.username, Password: string(decoded)}
		l.state = loginDone
		return "", true, nil

	default:
		l.state = loginDone
		return "", true, ErrInvalidFormat
	}
}

func (l *Login) Credentials() *Credentials {
	return l.creds
}
