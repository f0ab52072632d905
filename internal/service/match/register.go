package match

import (
	"google.golang.org/grpc"

	"github.com/oggyb/muzz-social/internal/server"
)

const ServiceName = "muzz.social.Match"

// Registrar ties the Match service into the gRPC server
type Registrar struct {
	service *Service
}

func NewRegistrar(service *Service) *Registrar {
	return &Registrar{service: service}
}

func (r *Registrar) Register(s *grpc.Server) {
	svc := r.service
	s.RegisterService(server.ServiceDesc(ServiceName,
		server.Unary(ServiceName, "SetUserDatingStatus", svc.SetUserDatingStatus),
		server.Unary(ServiceName, "ApproveMatch", svc.ApproveMatch),
		server.Unary(ServiceName, "RejectMatch", svc.RejectMatch),
		server.Unary(ServiceName, "MatchStatus", svc.MatchStatus),
		server.Unary(ServiceName, "ListMatchedUsers", svc.ListMatchedUsers),
		server.Unary(ServiceName, "SwipedRightUsers", svc.SwipedRightUsers),
	), r)
}
