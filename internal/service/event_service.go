package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/turmas-api/pkg/jobs"
)

// EventClassConcluded is published once a class conclusion commits.
const EventClassConcluded = "class.concluded"

// ClassConcludedEvent is the payload of EventClassConcluded.
type ClassConcludedEvent struct {
	ClassID          string    `json:"class_id"`
	CourseID         string    `json:"course_id"`
	InstructorID     string    `json:"instructor_id"`
	CompletionDate   string    `json:"completion_date"`
	ApprovedStudents []string  `json:"approved_students"`
	EnrollmentIDs    []string  `json:"enrollment_ids"`
	Unresolved       []string  `json:"unresolved,omitempty"`
	ConcludedAt      time.Time `json:"concluded_at"`
}

type jobEnqueuer interface {
	Enqueue(ctx context.Context, job jobs.Job) error
}

type eventPublisher interface {
	Publish(ctx context.Context, eventType, key string, payload interface{}) error
}

// LifecycleEvents hands domain events to the background queue. A nil
// *LifecycleEvents drops every event.
type LifecycleEvents struct {
	queue  jobEnqueuer
	logger *zap.Logger
}

// NewLifecycleEvents constructs the event emitter.
func NewLifecycleEvents(queue jobEnqueuer, logger *zap.Logger) *LifecycleEvents {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleEvents{queue: queue, logger: logger}
}

// ClassConcluded enqueues the event. Enqueue failures are logged only.
func (e *LifecycleEvents) ClassConcluded(ctx context.Context, evt ClassConcludedEvent) {
	if e == nil || e.queue == nil {
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Kind: EventClassConcluded, Payload: evt}
	if err := e.queue.Enqueue(ctx, job); err != nil {
		e.logger.Warn("failed to enqueue lifecycle event",
			zap.String("event", EventClassConcluded), zap.String("class_id", evt.ClassID), zap.Error(err))
	}
}

// PublishEventJob returns the queue handler that forwards lifecycle events to the broker.
func PublishEventJob(publisher eventPublisher) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		switch evt := job.Payload.(type) {
		case ClassConcludedEvent:
			return publisher.Publish(ctx, job.Kind, evt.ClassID, evt)
		default:
			return fmt.Errorf("unsupported event payload %T for %s", job.Payload, job.Kind)
		}
	}
}
