package mailgate

import (
	"errors"
	"strings"

	"golang.org/x/net/idna"
)

// ErrMalformedAddress is returned by parseAddressCommand when the command
// line does not match the expected "VERB:<address> [PARAM=VALUE ...]" shape.
var ErrMalformedAddress = errors.New("smtp: malformed address command")

// AddressRecord is the parsed form of a MAIL FROM or RCPT TO command: the
// envelope address (already punycode-decoded, empty for the null "<>"
// address) plus any ESMTP parameters that followed it.
type AddressRecord struct {
	Address string
	Args    map[string]string
}

// Get returns a parameter value and whether it was present. Flag-only
// parameters (e.g. "BODY=8BITMIME" vs a bare "SMTPUTF8") are recorded with
// the sentinel value "true".
func (a AddressRecord) Get(key string) (string, bool) {
	v, ok := a.Args[strings.ToUpper(key)]
	return v, ok
}

// parseAddressCommand parses a full MAIL or RCPT command line against the
// expected leading verb phrase (e.g. "MAIL FROM" or "RCPT TO").
func parseAddressCommand(line string, expectedVerb string) (AddressRecord, error) {
	before, after, ok := strings.Cut(line, ":")
	if !ok {
		return AddressRecord{}, ErrMalformedAddress
	}
	if !strings.EqualFold(strings.TrimSpace(before), expectedVerb) {
		return AddressRecord{}, ErrMalformedAddress
	}

	tokens := strings.Fields(after)
	if len(tokens) == 0 {
		return AddressRecord{}, ErrMalformedAddress
	}

	addrToken := tokens[0]
	if len(addrToken) < 2 || addrToken[0] != '<' || addrToken[len(addrToken)-1] != '>' {
		return AddressRecord{}, ErrMalformedAddress
	}
	body := addrToken[1 : len(addrToken)-1]
	if strings.ContainsAny(body, "<>") {
		return AddressRecord{}, ErrMalformedAddress
	}

	address, err := decodeMailbox(body)
	if err != nil {
		return AddressRecord{}, err
	}

	args := make(map[string]string, len(tokens)-1)
	for _, tok := range tokens[1:] {
		key, val, hasEq := strings.Cut(tok, "=")
		key = strings.ToUpper(key)
		if !hasEq {
			val = "true"
		}
		args[key] = val
	}

	return AddressRecord{Address: address, Args: args}, nil
}

// decodeMailbox validates the local@domain shape of a bracketed address body
// and decodes the domain from punycode (IDNA ACE) back to Unicode. An empty
// body (the null sender/recipient "<>") is returned unchanged.
func decodeMailbox(body string) (string, error) {
	if body == "" {
		return "", nil
	}
	if strings.Count(body, "@") != 1 {
		return "", ErrMalformedAddress
	}
	local, domain, _ := strings.Cut(body, "@")
	if local == "" || domain == "" {
		return "", ErrMalformedAddress
	}
	if decoded, derr := idna.ToUnicode(domain); derr == nil {
		domain = decoded
	}
	return local + "@" + domain, nil
}
