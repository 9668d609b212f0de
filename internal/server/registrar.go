package server

import "google.golang.org/grpc"

// Registrar attaches one gRPC service implementation to the server.
// NewGRPCServer calls Register once per registrar before serving.
type Registrar interface {
	Register(s *grpc.Server)
}
