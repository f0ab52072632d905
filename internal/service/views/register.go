package views

import (
	"context"

	"google.golang.org/grpc"

	"github.com/oggyb/muzz-social/internal/server"
)

const ServiceName = "muzz.social.Views"

type PostViewedByRequest struct {
	PostID string `json:"postId"`
}

type PostViewedByResponse struct {
	Viewers []Viewer `json:"viewers"`
}

// Registrar ties the Views service into the gRPC server
type Registrar struct {
	tracker *Tracker
}

func NewRegistrar(tracker *Tracker) *Registrar {
	return &Registrar{tracker: tracker}
}

func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(server.ServiceDesc(ServiceName,
		server.Unary(ServiceName, "ReportPostViews", r.tracker.ReportPostViews),
		server.Unary(ServiceName, "PostViewedBy", r.postViewedBy),
	), r)
}

func (r *Registrar) postViewedBy(ctx context.Context, caller string, req *PostViewedByRequest) (*PostViewedByResponse, error) {
	viewers, err := r.tracker.PostViewedBy(ctx, caller, req.PostID)
	if err != nil {
		return nil, err
	}
	return &PostViewedByResponse{Viewers: viewers}, nil
}
