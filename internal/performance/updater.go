package performance

import (
	"context"
	"log/slog"
	"time"

	"github.com/tutorkit/tutord/internal/diagnosis"
	"github.com/tutorkit/tutord/internal/policy"
	"github.com/tutorkit/tutord/internal/quality"
)

const (
	defaultQueueSize = 64
	updateTimeout    = 10 * time.Second
)

// Update is one queued per-turn performance fold.
type Update struct {
	AgentID   string
	StudentID string
	Scores    quality.Scores
	Feedback  policy.Feedback
	Confusion diagnosis.Kind
}

// Folder is the slice of the aggregator the updater needs.
type Folder interface {
	Update(ctx context.Context, agentID string, scores quality.Scores, feedback policy.Feedback, kind diagnosis.Kind, studentID string) (Summary, error)
}

// Updater applies performance updates off the request path. The queue
// is bounded; when it is full the update is dropped, and failed folds
// are logged and dropped rather than retried. Statistics bookkeeping
// never blocks or fails a tutoring response.
type Updater struct {
	folder Folder
	jobs   chan Update
	logger *slog.Logger
}

// NewUpdater creates an Updater with the given queue size.
// If queueSize is <= 0, it defaults to 64.
func NewUpdater(folder Folder, queueSize int) *Updater {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Updater{
		folder: folder,
		jobs:   make(chan Update, queueSize),
		logger: slog.Default(),
	}
}

// Enqueue queues an update without blocking. Returns false when the
// queue is full and the update was dropped.
func (u *Updater) Enqueue(up Update) bool {
	select {
	case u.jobs <- up:
		return true
	default:
		u.logger.Warn("performance update dropped, queue full", "agent_id", up.AgentID)
		return false
	}
}

// Run drains the queue until ctx is cancelled.
func (u *Updater) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case up := <-u.jobs:
			u.process(ctx, up)
		}
	}
}

func (u *Updater) process(ctx context.Context, up Update) {
	ctx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()

	if _, err := u.folder.Update(ctx, up.AgentID, up.Scores, up.Feedback, up.Confusion, up.StudentID); err != nil {
		u.logger.Warn("background performance update failed", "agent_id", up.AgentID, "error", err)
	}
}
