package escalation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medibot/pkg/logging"
)

var tracer = otel.Tracer("medibot/escalation")

type store interface {
	List(ctx context.Context, userID string) ([]Escalation, error)
	Resolve(ctx context.Context, userID string, id int64) (Escalation, error)
}

// Service exposes the escalation queue to API callers.
type Service struct {
	store  store
	logger *logging.Logger
}

func NewService(s store, logger *logging.Logger) *Service {
	if s == nil {
		panic("escalation: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: s, logger: logger}
}

func (s *Service) List(ctx context.Context, userID string) ([]Escalation, error) {
	return s.store.List(ctx, userID)
}

func (s *Service) Resolve(ctx context.Context, userID string, id int64) (Escalation, error) {
	ctx, span := tracer.Start(ctx, "escalation.resolve")
	defer span.End()
	span.SetAttributes(attribute.Int64("escalation.id", id))

	e, err := s.store.Resolve(ctx, userID, id)
	if err != nil {
		span.RecordError(err)
		return Escalation{}, err
	}
	s.logger.Info("escalation resolved", "escalation_id", id, "user_id", userID)
	return e, nil
}
