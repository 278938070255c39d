package service

import (
	"context"

	"hr-portal/internal/model"
	"hr-portal/internal/repository"
)

// defaultMinReviewed is how many reviewed attempts a user needs before
// appearing on the quality board.
const defaultMinReviewed = 3

// RankingService handles leaderboards.
type RankingService struct {
	rankings *repository.RankingRepository
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(rankings *repository.RankingRepository) *RankingService {
	return &RankingService{rankings: rankings}
}

// TopEarners returns users with the highest balance.
func (s *RankingService) TopEarners(ctx context.Context, limit int) ([]*model.RankedUser, error) {
	users, err := s.rankings.TopByBalance(ctx, clampLimit(limit, 10, 100))
	if err != nil {
		return nil, storageErr("top earners", err)
	}
	return users, nil
}

// MostProductive returns users with the most approved attempts.
func (s *RankingService) MostProductive(ctx context.Context, limit int) ([]*model.RankedUser, error) {
	users, err := s.rankings.TopByApproved(ctx, clampLimit(limit, 10, 100))
	if err != nil {
		return nil, storageErr("most productive", err)
	}
	return users, nil
}

// QualityLeaders returns users with the best approved/(approved+rejected)
// ratio among those with at least minReviewed reviewed attempts.
func (s *RankingService) QualityLeaders(ctx context.Context, limit, minReviewed int) ([]*model.RankedUser, error) {
	if minReviewed <= 0 {
		minReviewed = defaultMinReviewed
	}
	users, err := s.rankings.TopByApprovalRate(ctx, clampLimit(limit, 10, 100), minReviewed)
	if err != nil {
		return nil, storageErr("quality leaders", err)
	}
	return users, nil
}
