package gateway

import (
	"context"
	"net/http"

	"github.com/3leaps/casegen/pkg/transport"
)

// Stats is the gateway for aggregate counters and server health.
type Stats struct {
	c Doer
}

// Dashboard returns the dashboard counters.
func (s *Stats) Dashboard(ctx context.Context) (*DashboardStats, error) {
	var stats DashboardStats
	if _, err := s.c.Do(ctx, http.MethodGet, "/dashboard", nil, &stats, transport.WithRoute("/dashboard")); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Health checks the server. Any 2xx answer is healthy; the payload carries no
// contract.
func (s *Stats) Health(ctx context.Context) error {
	_, err := s.c.Send(ctx, http.MethodGet, "/health", nil, transport.WithRoute("/health"))
	return err
}
