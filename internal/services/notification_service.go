package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"tcmclinic/internal/apperr"
	"tcmclinic/internal/logging"
	"tcmclinic/internal/models"

	"golang.org/x/sync/errgroup"
)

// pushWindow bounds the number of LINE pushes in flight
const pushWindow = 10

// Pusher sends one text message to a LINE user
type Pusher interface {
	PushText(ctx context.Context, userID, text string) error
}

// NotificationService fans podcast notifications out to patients over LINE
type NotificationService struct {
	pusher Pusher
}

// NewNotificationService creates a notification service
func NewNotificationService(pusher Pusher) *NotificationService {
	return &NotificationService{pusher: pusher}
}

// Validate checks a send request before any message goes out
func (s *NotificationService) Validate(req *models.SendNotificationRequest) error {
	if len(uniqueIDs(req.LineIDs)) == 0 {
		return apperr.Validation("No LINE IDs provided")
	}
	u, err := url.Parse(strings.TrimSpace(req.PodcastURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.Validation("Invalid podcast URL")
	}
	return nil
}

// Send pushes the message to every recipient, at most pushWindow at a time.
// Individual failures are collected, never returned as an error.
func (s *NotificationService) Send(ctx context.Context, req *models.SendNotificationRequest) (*models.BatchPushResult, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}

	text := req.Message
	if strings.TrimSpace(text) == "" {
		text = fmt.Sprintf("新的節目已上線：%s", req.PodcastURL)
	} else if !strings.Contains(text, req.PodcastURL) {
		text = text + "\n" + req.PodcastURL
	}

	result := &models.BatchPushResult{Errors: []models.PushError{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pushWindow)

	for _, id := range uniqueIDs(req.LineIDs) {
		g.Go(func() error {
			err := s.pusher.PushText(gctx, id, text)
			GetMetrics().RecordPush(err == nil)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, models.PushError{UserID: id, Error: err.Error()})
				return nil
			}
			result.Success++
			return nil
		})
	}
	_ = g.Wait()

	logging.L().Infof("📣 LINE notifications: %d sent, %d failed", result.Success, result.Failed)
	return result, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
