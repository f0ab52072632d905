package chat

import (
	"context"

	"google.golang.org/grpc"

	"github.com/oggyb/muzz-social/internal/server"
)

const ServiceName = "muzz.social.Chat"

// Registrar ties the Chat service into the gRPC server
type Registrar struct {
	service *Service
}

func NewRegistrar(service *Service) *Registrar {
	return &Registrar{service: service}
}

func (r *Registrar) Register(s *grpc.Server) {
	svc := r.service
	s.RegisterService(server.ServiceDesc(ServiceName,
		server.Unary(ServiceName, "CreateDirectChat", svc.CreateDirectChat),
		server.Unary(ServiceName, "CreateGroupChat", svc.CreateGroupChat),
		server.Unary(ServiceName, "AddToGroupChat", svc.AddToGroupChat),
		server.Unary(ServiceName, "EditGroupChatName", svc.EditGroupChatName),
		server.Unary(ServiceName, "LeaveGroupChat", svc.LeaveGroupChat),
		server.Unary(ServiceName, "AddChatMessage", svc.AddChatMessage),
		server.Unary(ServiceName, "EditChatMessage", svc.EditChatMessage),
		server.Unary(ServiceName, "DeleteChatMessage", svc.DeleteChatMessage),
		server.Unary(ServiceName, "ReportChatViews", svc.ReportChatViews),
		server.Unary(ServiceName, "FlagChat", svc.FlagChat),
		server.Unary(ServiceName, "GetChat", r.getChat),
		server.Unary(ServiceName, "ListChats", svc.ListChats),
		server.Unary(ServiceName, "ListChatMessages", svc.ListMessages),
		server.Unary(ServiceName, "UserChatsWithUnviewedMessagesCount", svc.ChatsWithUnviewedMessagesCount),
	), r)
}

func (r *Registrar) getChat(ctx context.Context, caller string, req *ChatRequest) (*Chat, error) {
	return r.service.GetChat(ctx, caller, req.ChatID)
}
