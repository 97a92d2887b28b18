package scheduler

import "context"

//go:generate mockgen -destination=mocks/mock_jobs.go -package=mocks github.com/mattjoyce/relayd/internal/scheduler Publisher,Sweeper

// Publisher sends notifications on the broadcast channel.
type Publisher interface {
	Publish(notifType string, data map[string]any, topic string) error
}

// Sweeper is the session housekeeping the scheduler drives.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
	ActiveSessions(ctx context.Context) (int, error)
}
