package cards

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/oggyb/muzz-social/internal/db"
	"github.com/oggyb/muzz-social/internal/server"
	"github.com/oggyb/muzz-social/internal/utils/pagination"
)

const ServiceName = "muzz.social.Cards"

// CardView is a card as returned to its owner.
type CardView struct {
	CardID    string    `json:"cardId"`
	CardType  string    `json:"cardType"`
	Title     string    `json:"title"`
	SubTitle  *string   `json:"subTitle"`
	Action    string    `json:"action"`
	Thumbnail *string   `json:"thumbnail"`
	CreatedAt time.Time `json:"createdAt"`
}

func ToView(c *db.Card) CardView {
	return CardView{
		CardID:    c.ID,
		CardType:  c.Type,
		Title:     c.Title,
		SubTitle:  c.SubTitle,
		Action:    c.Action,
		Thumbnail: c.Thumbnail,
		CreatedAt: c.CreatedAt,
	}
}

type ListCardsRequest struct {
	PaginationToken *string `json:"paginationToken,omitempty"`
	Limit           int     `json:"limit,omitempty"`
}

type ListCardsResponse struct {
	Cards               []CardView `json:"cards"`
	NextPaginationToken *string    `json:"nextPaginationToken,omitempty"`
}

type CardRequest struct {
	CardID string `json:"cardId"`
}

type DeleteCardResponse struct {
	CardID string `json:"cardId"`
}

// Registrar ties the Cards service into the gRPC server
type Registrar struct {
	engine *Engine
}

// NewRegistrar creates a new Registrar for the Cards service
func NewRegistrar(engine *Engine) *Registrar {
	return &Registrar{engine: engine}
}

// Register attaches the Cards service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(server.ServiceDesc(ServiceName,
		server.Unary(ServiceName, "ListCards", r.listCards),
		server.Unary(ServiceName, "GetCard", r.getCard),
		server.Unary(ServiceName, "DeleteCard", r.deleteCard),
	), r)
}

func (r *Registrar) listCards(ctx context.Context, caller string, req *ListCardsRequest) (*ListCardsResponse, error) {
	cards, next, err := r.engine.List(ctx, caller, req.PaginationToken, pagination.Limit(req.Limit, 20, 100))
	if err != nil {
		return nil, err
	}
	resp := &ListCardsResponse{Cards: make([]CardView, 0, len(cards)), NextPaginationToken: next}
	for i := range cards {
		resp.Cards = append(resp.Cards, ToView(&cards[i]))
	}
	return resp, nil
}

func (r *Registrar) getCard(ctx context.Context, caller string, req *CardRequest) (*CardView, error) {
	c, err := r.engine.Get(ctx, caller, req.CardID)
	if err != nil {
		return nil, err
	}
	v := ToView(c)
	return &v, nil
}

func (r *Registrar) deleteCard(ctx context.Context, caller string, req *CardRequest) (*DeleteCardResponse, error) {
	if err := r.engine.Delete(ctx, caller, req.CardID); err != nil {
		return nil, err
	}
	return &DeleteCardResponse{CardID: req.CardID}, nil
}
