package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"hr-portal/internal/model"
	"hr-portal/internal/repository"
)

// NewsService publishes admin announcements.
type NewsService struct {
	users *repository.UserRepository
	news  *repository.NewsRepository
}

// NewNewsService creates a new NewsService instance.
func NewNewsService(users *repository.UserRepository, news *repository.NewsRepository) *NewsService {
	return &NewsService{users: users, news: news}
}

// Create publishes an announcement.
func (s *NewsService) Create(ctx context.Context, adminID int64, title, content string) (*model.News, error) {
	if _, err := requireAdmin(ctx, s.users, adminID); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" || content == "" {
		return nil, invalidInput("title and content are required")
	}
	n, err := s.news.Create(ctx, title, content, adminID)
	if err != nil {
		return nil, storageErr("create news", err)
	}
	log.Info().Int64("news_id", n.ID).Msg("News published")
	return n, nil
}

// ListActive returns visible announcements, newest first.
func (s *NewsService) ListActive(ctx context.Context, limit int) ([]*model.News, error) {
	items, err := s.news.ListActive(ctx, clampLimit(limit, 20, 100))
	if err != nil {
		return nil, storageErr("list news", err)
	}
	return items, nil
}

// Deactivate hides an announcement.
func (s *NewsService) Deactivate(ctx context.Context, adminID, id int64) error {
	if _, err := requireAdmin(ctx, s.users, adminID); err != nil {
		return err
	}
	if err := s.news.Deactivate(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNewsNotFound) {
			return ErrNewsNotFound
		}
		return storageErr("deactivate news", err)
	}
	return nil
}
