package social

import (
	"google.golang.org/grpc"

	"github.com/oggyb/muzz-social/internal/server"
)

const ServiceName = "muzz.social.Social"

// Registrar ties the Social service into the gRPC server
type Registrar struct {
	service *Service
}

func NewRegistrar(service *Service) *Registrar {
	return &Registrar{service: service}
}

func (r *Registrar) Register(s *grpc.Server) {
	svc := r.service
	s.RegisterService(server.ServiceDesc(ServiceName,
		server.Unary(ServiceName, "CreateUser", svc.CreateUser),
		server.Unary(ServiceName, "GetUser", svc.GetUser),
		server.Unary(ServiceName, "SetUserDetails", svc.SetUserDetails),
		server.Unary(ServiceName, "SetUserStatus", svc.SetUserStatus),
		server.Unary(ServiceName, "ResetUser", svc.ResetUser),
		server.Unary(ServiceName, "FollowUser", svc.FollowUser),
		server.Unary(ServiceName, "UnfollowUser", svc.UnfollowUser),
		server.Unary(ServiceName, "AcceptFollowerUser", svc.AcceptFollowerUser),
		server.Unary(ServiceName, "DenyFollowerUser", svc.DenyFollowerUser),
		server.Unary(ServiceName, "BlockUser", svc.BlockUser),
		server.Unary(ServiceName, "UnblockUser", svc.UnblockUser),
		server.Unary(ServiceName, "FindContacts", svc.FindContacts),
		server.Unary(ServiceName, "AddPost", svc.AddPost),
		server.Unary(ServiceName, "CompletePost", svc.CompletePost),
		server.Unary(ServiceName, "ArchivePost", svc.ArchivePost),
		server.Unary(ServiceName, "AddComment", svc.AddComment),
		server.Unary(ServiceName, "DeleteComment", svc.DeleteComment),
	), r)
}
