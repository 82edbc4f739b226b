package narrative

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Service wraps a Narrator with a timeout, request de-duplication and a
// deterministic fallback. Enrich never fails.
type Service struct {
	narrator Narrator
	timeout  time.Duration
	logger   *zap.Logger
	tracer   trace.Tracer
	group    singleflight.Group
}

// NewService creates a Service. A nil narrator makes every call fall back.
//
// Precondition: logger must be non-nil; timeout > 0.
func NewService(narrator Narrator, timeout time.Duration, logger *zap.Logger) *Service {
	return &Service{
		narrator: narrator,
		timeout:  timeout,
		logger:   logger,
		tracer:   otel.Tracer("delve/narrative"),
	}
}

// Enrich asks the narrator for req and returns its result, or Fallback(req)
// on timeout, error or an empty reply. Identical concurrent requests share a
// single narrator call.
//
// Postcondition: the returned Text is non-empty.
func (s *Service) Enrich(ctx context.Context, req Request) Result {
	if s == nil || s.narrator == nil {
		return Fallback(req)
	}
	ctx, span := s.tracer.Start(ctx, "narrative.enrich", trace.WithAttributes(
		attribute.String("narrative.kind", string(req.Kind)),
		attribute.Int("narrative.floor", req.Floor),
	))
	defer span.End()

	key := fmt.Sprintf("%s|%s|%d|%d|%d|%d|%d", req.Kind, req.Subject, req.Floor, req.Level, req.Health, req.BaseXP, req.BaseGold)
	v, err, shared := s.group.Do(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.narrator.Narrate(callCtx, req)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "narrator failed")
		s.logger.Warn("narrative fallback",
			zap.String("kind", string(req.Kind)),
			zap.Error(err),
		)
		return Fallback(req)
	}
	res := v.(Result)
	if res.Text == "" {
		s.logger.Warn("narrative fallback",
			zap.String("kind", string(req.Kind)),
			zap.String("reason", "empty text"),
		)
		return Fallback(req)
	}
	span.SetAttributes(attribute.Bool("narrative.shared", shared))
	return res
}
