// Package query contains the read operations of the ranking pipeline.
// Queries never change state; they answer from the live Redis views.
package query

import (
	"context"
	"errors"

	"github.com/arenaboard/arenaboard/internal/domain/leaderboard"
)

// ErrNilDependency is returned when a handler is constructed incompletely.
var ErrNilDependency = errors.New("query: missing dependency")

// ManagerSource resolves the leaderboard manager serving a mode's reads.
// command.StoreResolver satisfies it.
type ManagerSource interface {
	Primary(mode string) (*leaderboard.Manager, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// GET TOP
// ══════════════════════════════════════════════════════════════════════════════

// GetTopQuery selects a page of a scoped leaderboard.
type GetTopQuery struct {
	Mode    string
	Country string
	Region  string
	Day     string // YYYYMMDD
	Offset  int64
	Limit   int64
}

// TopEntry is one row of a top-K answer: 1-based position and rounded score.
type TopEntry struct {
	Position int64  `json:"position"`
	UserID   string `json:"user_id"`
	Score    int64  `json:"score"`
}

// GetTopHandler answers GetTopQuery.
type GetTopHandler struct {
	source ManagerSource
}

// NewGetTopHandler creates the handler.
func NewGetTopHandler(source ManagerSource) (*GetTopHandler, error) {
	if source == nil {
		return nil, ErrNilDependency
	}
	return &GetTopHandler{source: source}, nil
}

// Handle returns the requested page in descending score order. Positions are
// offset-based list positions, not tie-aware ranks.
func (h *GetTopHandler) Handle(ctx context.Context, q GetTopQuery) ([]TopEntry, error) {
	mgr, err := h.source.Primary(q.Mode)
	if err != nil {
		return nil, err
	}

	entries, err := mgr.TopK(ctx, leaderboard.TopQuery{
		Country: q.Country,
		Region:  q.Region,
		Day:     q.Day,
		Offset:  q.Offset,
		Limit:   q.Limit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]TopEntry, len(entries))
	for i, e := range entries {
		out[i] = TopEntry{
			Position: q.Offset + int64(i) + 1,
			UserID:   e.UserID,
			Score:    e.Rounded(),
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET RANK
// ══════════════════════════════════════════════════════════════════════════════

// GetRankQuery asks for one user's rank within a scope.
type GetRankQuery struct {
	Mode    string
	UserID  string
	Country string
	Region  string
	Day     string // YYYYMMDD
}

// GetRankHandler answers GetRankQuery.
type GetRankHandler struct {
	source ManagerSource
}

// NewGetRankHandler creates the handler.
func NewGetRankHandler(source ManagerSource) (*GetRankHandler, error) {
	if source == nil {
		return nil, ErrNilDependency
	}
	return &GetRankHandler{source: source}, nil
}

// Handle returns the user's tie-aware 1-based rank and rounded score.
// Returns leaderboard.ErrUserNotFound for an unknown user.
func (h *GetRankHandler) Handle(ctx context.Context, q GetRankQuery) (leaderboard.RankResult, error) {
	mgr, err := h.source.Primary(q.Mode)
	if err != nil {
		return leaderboard.RankResult{}, err
	}
	return mgr.UserRank(ctx, q.UserID, leaderboard.RankQuery{
		Country: q.Country,
		Region:  q.Region,
		Day:     q.Day,
	})
}
