// Package resolver performs the reverse DNS lookup the engine uses to
// derive a connecting client's PTR hostname for logging and Received
// headers.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	mdns "github.com/miekg/dns"
)

// ErrNotFound is returned when a reverse lookup completes without error
// but yields no PTR record.
var ErrNotFound = errors.New("resolver: no PTR record found")

// Resolver performs a reverse lookup for a client's IP address.
type Resolver interface {
	ReverseLookup(ctx context.Context, ip net.IP) (string, error)
}

// DNSResolver implements Resolver using github.com/miekg/dns, querying the
// system's configured nameservers directly rather than going through the
// standard library's resolver.
type DNSResolver struct {
	client  *mdns.Client
	servers []string
}

// NewDNSResolver builds a DNSResolver from /etc/resolv.conf, falling back
// to public resolvers if that file can't be read.
func NewDNSResolver(timeout time.Duration) *DNSResolver {
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	return &DNSResolver{
		client:  &mdns.Client{Timeout: timeout},
		servers: systemNameservers(),
	}
}

func systemNameservers() []string {
	cfg, err := mdns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cfg.Servers) == 0 {
		return []string{"8.8.8.8:53", "1.1.1.1:53"}
	}
	servers := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		if !strings.Contains(s, ":") {
			s = net.JoinHostPort(s, "53")
		}
		servers = append(servers, s)
	}
	return servers
}

// ReverseLookup queries PTR records for ip against each configured
// nameserver in turn, returning the first answer found.
func (r *DNSResolver) ReverseLookup(ctx context.Context, ip net.IP) (string, error) {
	arpa, err := mdns.ReverseAddr(ip.String())
	if err != nil {
		return "", fmt.Errorf("resolver: %w", err)
	}

	msg := new(mdns.Msg)
	msg.SetQuestion(arpa, mdns.TypePTR)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		resp, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Rcode != mdns.RcodeSuccess {
			lastErr = fmt.Errorf("resolver: rcode %s from %s", mdns.RcodeToString[resp.Rcode], server)
			continue
		}
		for _, ans := range resp.Answer {
			if ptr, ok := ans.(*mdns.PTR); ok {
				return strings.TrimSuffix(ptr.Ptr, "."), nil
			}
		}
		return "", ErrNotFound
	}
	if lastErr != nil {
		return "", fmt.Errorf("resolver: lookup failed: %w", lastErr)
	}
	return "", ErrNotFound
}
