package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"mailtriage/pkg/mq"
	"mailtriage/pkg/trace"
)

// ReplayService lets the admin API retry events the dispatcher gave up
// on, either one at a time or as a bulk sweep.
type ReplayService struct {
	repo      *Repository
	publisher *mq.Publisher
}

func NewReplayService(repo *Repository, publisher *mq.Publisher) *ReplayService {
	return &ReplayService{repo: repo, publisher: publisher}
}

// ReplayEvent re-publishes a single event regardless of its current
// status.
func (s *ReplayService) ReplayEvent(ctx context.Context, eventID int64) error {
	event, err := s.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("get event: %w", err)
	}

	var payload interface{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	ctx = trace.WithContext(ctx, traceIDFromPayload(event.Payload))
	if err := s.publisher.PublishWithContext(ctx, event.RoutingKey, payload); err != nil {
		if markErr := s.repo.MarkAsFailed(ctx, eventID, 5); markErr != nil {
			return fmt.Errorf("publish failed, mark as failed also failed: %w (mark error: %v)", err, markErr)
		}
		return fmt.Errorf("publish: %w", err)
	}

	if err := s.repo.MarkAsSent(ctx, eventID); err != nil {
		return fmt.Errorf("mark as sent: %w", err)
	}
	return nil
}

// ReplayFailedEvents re-publishes up to limit permanently-failed events
// and returns how many succeeded.
func (s *ReplayService) ReplayFailedEvents(ctx context.Context, limit int) (int, error) {
	events, err := s.repo.GetFailedEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("get failed events: %w", err)
	}

	successCount := 0
	for _, event := range events {
		if err := s.ReplayEvent(ctx, event.ID); err != nil {
			continue
		}
		successCount++
	}
	return successCount, nil
}
