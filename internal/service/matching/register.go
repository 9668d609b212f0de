package matching

import (
	"google.golang.org/grpc"

	"github.com/oggyb/matchmaker/internal/app"
)

// Registrar ties the matching service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the matching service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the matching service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	RegisterMatchingServiceServer(s, NewGRPCHandler(NewService(r.appCtx)))
}
