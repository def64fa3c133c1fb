package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// StdResolver implements Resolver using the standard library's resolver
// (typically the OS stub resolver via cgo, or Go's own DNS client). Use
// this when there's no need to talk to specific nameservers directly.
type StdResolver struct {
	resolver *net.Resolver
}

// NewStdResolver returns a StdResolver backed by net.DefaultResolver.
func NewStdResolver() *StdResolver {
	return &StdResolver{resolver: net.DefaultResolver}
}

// ReverseLookup performs a PTR lookup via net.Resolver.LookupAddr.
func (r *StdResolver) ReverseLookup(ctx context.Context, ip net.IP) (string, error) {
	names, err := r.resolver.LookupAddr(ctx, ip.String())
	if err != nil {
		return "", convertError(err)
	}
	if len(names) == 0 {
		return "", ErrNotFound
	}
	return names[0], nil
}

func convertError(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return ErrNotFound
	}
	return fmt.Errorf("resolver: lookup failed: %w", err)
}
