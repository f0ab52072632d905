package match

type SetDatingStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ENABLED DISABLED"`
}

type DatingStatus struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type UserRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type ListRequest struct {
	Status          string  `json:"status" validate:"required,oneof=POTENTIAL APPROVED REJECTED CONFIRMED"`
	PaginationToken *string `json:"paginationToken,omitempty"`
	Limit           int     `json:"limit,omitempty"`
}

// Match is the caller's view of a match with another user.
type Match struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type MatchList struct {
	Matches             []Match `json:"matches"`
	NextPaginationToken *string `json:"nextPaginationToken,omitempty"`
}

type UserIDs struct {
	UserIDs []string `json:"userIds"`
}
