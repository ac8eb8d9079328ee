// Package health reports readiness through the standard grpc.health.v1 service.
package health

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// checkTimeout bounds each dependency probe.
const checkTimeout = 2 * time.Second

// Pinger is used for readiness (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is used for readiness (e.g. the OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker probes the database and the policy engine and publishes the result on a gRPC health
// server, both for the overall server ("") and for each named service.
type Checker struct {
	server   *health.Server
	pinger   Pinger
	policy   PolicyChecker
	services []string
	logger   *slog.Logger
	serving  bool
}

// NewChecker returns a Checker. pinger and policy may be nil; nil dependencies are skipped.
func NewChecker(server *health.Server, pinger Pinger, policy PolicyChecker, logger *slog.Logger, services ...string) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{server: server, pinger: pinger, policy: policy, services: services, logger: logger, serving: true}
}

// Check probes every dependency once and returns the resulting status.
func (c *Checker) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if c.pinger != nil {
		pctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.pinger.PingContext(pctx)
		cancel()
		if err != nil {
			c.logger.Warn("health: database ping failed", "error", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	if c.policy != nil {
		pctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.policy.HealthCheck(pctx)
		cancel()
		if err != nil {
			c.logger.Warn("health: policy engine check failed", "error", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	c.publish(st)
	return st
}

func (c *Checker) publish(st healthpb.HealthCheckResponse_ServingStatus) {
	serving := st == healthpb.HealthCheckResponse_SERVING
	if serving != c.serving {
		c.logger.Info("health: status changed", "status", st.String())
		c.serving = serving
	}
	c.server.SetServingStatus("", st)
	for _, svc := range c.services {
		c.server.SetServingStatus(svc, st)
	}
}

// Run checks immediately and then every interval until ctx is done, after which all services
// are marked NOT_SERVING.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		c.Check(ctx)
		select {
		case <-ctx.Done():
			c.server.Shutdown()
			return
		case <-t.C:
		}
	}
}
