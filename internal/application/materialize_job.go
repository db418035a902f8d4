package application

import (
	"context"
	"errors"

	"github.com/nuru484/BeThere-server/internal/jobqueue"
	"github.com/nuru484/BeThere-server/internal/persistence"
	"github.com/nuru484/BeThere-server/internal/scheduler"
)

// HandleMaterializeJob runs a queued materialize task. Malformed payloads and
// events that can never produce a session fail without retry; jobs for deleted
// events are dropped.
func (s *SessionService) HandleMaterializeJob(ctx context.Context, job persistence.Job) error {
	payload, err := scheduler.DecodeMaterializePayload(job.Payload)
	if err != nil {
		return jobqueue.Permanent(err)
	}
	target, err := payload.Target(s.engine.Location())
	if err != nil {
		return jobqueue.Permanent(err)
	}

	result, err := s.Materialize(ctx, MaterializeParams{EventID: payload.EventID, TargetDate: target})
	if err != nil {
		if errors.Is(err, ErrInvalidConfiguration) {
			return jobqueue.Permanent(err)
		}
		return err
	}
	if result.Outcome == OutcomeDropped {
		return jobqueue.Drop(result.Reason)
	}
	return nil
}
