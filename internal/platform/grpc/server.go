// Package grpc serves and probes gRPC health endpoints for background
// processes.
package grpc

import (
	"fmt"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer is a gRPC server exposing the standard health service.
type HealthServer struct {
	listener net.Listener
	server   *gogrpc.Server
	health   *health.Server
	serveErr chan error
}

// ServeHealth listens on addr and reports SERVING for the overall server and
// each named service until Stop.
func ServeHealth(addr string, services ...string) (*HealthServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	s := &HealthServer{
		listener: listener,
		server:   gogrpc.NewServer(gogrpc.StatsHandler(otelgrpc.NewServerHandler())),
		health:   health.NewServer(),
		serveErr: make(chan error, 1),
	}
	grpc_health_v1.RegisterHealthServer(s.server, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	for _, service := range services {
		s.health.SetServingStatus(service, grpc_health_v1.HealthCheckResponse_SERVING)
	}
	go func() {
		s.serveErr <- s.server.Serve(listener)
	}()
	return s, nil
}

// Addr returns the listening address.
func (s *HealthServer) Addr() net.Addr {
	return s.listener.Addr()
}

// SetServing flips the status of service.
func (s *HealthServer) SetServing(service string, serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, status)
}

// Stop reports NOT_SERVING, drains in-flight calls, and waits for Serve to
// return.
func (s *HealthServer) Stop() {
	if s == nil {
		return
	}
	s.health.Shutdown()
	s.server.GracefulStop()
	<-s.serveErr
}
