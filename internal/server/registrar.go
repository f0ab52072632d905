package server

import "google.golang.org/grpc"

// Registrar attaches one JSON-coded service to a gRPC server.
type Registrar interface {
	Register(s *grpc.Server)
}

// RegisterAll registers every service in order.
func RegisterAll(s *grpc.Server, registrars ...Registrar) {
	for _, r := range registrars {
		r.Register(s)
	}
}
