// Package registry resolves platform-level addresses the engine routes
// value to, such as the treasury that collects forfeited stakes.
package registry

import (
	"context"
	"errors"
	"strings"
)

// ErrNotRegistered is returned when a requested address is not configured.
var ErrNotRegistered = errors.New("registry: address not registered")

// Registry resolves well-known platform addresses.
type Registry interface {
	Treasury(ctx context.Context) (string, error)
	Arbitrator(ctx context.Context) (string, error)
}

// Static is a Registry with fixed, configuration-supplied addresses.
type Static struct {
	treasury   string
	arbitrator string
}

// NewStatic creates a registry from configured addresses.
func NewStatic(treasury, arbitrator string) *Static {
	return &Static{
		treasury:   strings.ToLower(treasury),
		arbitrator: strings.ToLower(arbitrator),
	}
}

func (s *Static) Treasury(context.Context) (string, error) {
	if s.treasury == "" {
		return "", ErrNotRegistered
	}
	return s.treasury, nil
}

func (s *Static) Arbitrator(context.Context) (string, error) {
	if s.arbitrator == "" {
		return "", ErrNotRegistered
	}
	return s.arbitrator, nil
}
