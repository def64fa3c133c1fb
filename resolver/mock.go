package resolver

import (
	"context"
	"net"
)

// MockResolver is a fixed-table Resolver for tests.
type MockResolver struct {
	PTR map[string]string
}

// NewMockResolver returns a MockResolver with an empty answer table.
func NewMockResolver() *MockResolver {
	return &MockResolver{PTR: make(map[string]string)}
}

// Set registers the PTR answer for ip.
func (m *MockResolver) Set(ip, hostname string) {
	m.PTR[ip] = hostname
}

// ReverseLookup returns the registered hostname for ip, or ErrNotFound.
func (m *MockResolver) ReverseLookup(_ context.Context, ip net.IP) (string, error) {
	if name, ok := m.PTR[ip.String()]; ok {
		return name, nil
	}
	return "", ErrNotFound
}
