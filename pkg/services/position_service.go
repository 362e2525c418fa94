package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fleetdispatch/pkg/apperr"
	"fleetdispatch/pkg/clock"
	"fleetdispatch/pkg/envelope"
	"fleetdispatch/pkg/metrics"
	"fleetdispatch/pkg/models"
	"fleetdispatch/pkg/repository"
	"fleetdispatch/pkg/rooms"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

var tracer = otel.Tracer("fleetdispatch/services")

// PositionCache holds the live position per vehicle and the sampling counters.
// cache.Positions (Redis) and cache.MemoryPositions both satisfy it.
type PositionCache interface {
	Get(ctx context.Context, vehicleID string) (models.PositionSample, bool, error)
	Set(ctx context.Context, s models.PositionSample, ttl time.Duration) error
	List(ctx context.Context) ([]models.PositionSample, error)
	Incr(ctx context.Context, vehicleID string) (int64, error)
}

// Publisher emits room-scoped events. broker.Emitter satisfies it.
type Publisher interface {
	Emit(ctx context.Context, room, event string, data any) error
}

type IngestResult struct {
	Cached    bool  `json:"cached"`
	Persisted bool  `json:"persisted"`
	Count     int64 `json:"count,omitempty"`
}

type PositionService interface {
	Ingest(ctx context.Context, report models.PositionReport) (IngestResult, error)
	CurrentPosition(ctx context.Context, vehicleID string) (models.PositionSample, bool, error)
	History(ctx context.Context, vehicleID string, from, to time.Time, limit int) ([]models.PositionSample, error)
	LivePositions(ctx context.Context) ([]models.PositionSample, error)
}

type PositionOptions struct {
	Refresh       RefreshPolicy
	Sampling      SamplingPolicy
	MaxFutureSkew time.Duration
}

type positionService struct {
	cache    PositionCache
	repo     repository.PositionRepository
	pub      Publisher
	clock    clock.Clock
	refresh  RefreshPolicy
	sampling SamplingPolicy
	skew     time.Duration
	validate *validator.Validate
	log      *slog.Logger
}

func NewPositionService(cache PositionCache, repo repository.PositionRepository, pub Publisher, clk clock.Clock, opts PositionOptions) PositionService {
	if opts.Refresh == nil {
		opts.Refresh = LatestWins{Expiry: 5 * time.Minute}
	}
	if opts.Sampling == nil {
		opts.Sampling = EveryNth{N: 5}
	}
	return &positionService{
		cache:    cache,
		repo:     repo,
		pub:      pub,
		clock:    clk,
		refresh:  opts.Refresh,
		sampling: opts.Sampling,
		skew:     opts.MaxFutureSkew,
		validate: newValidator(),
		log:      slog.Default().With("component", "gps"),
	}
}

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *positionService) check(report models.PositionReport) error {
	if err := s.validate.Struct(report); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Tag() == "required" {
				return apperr.Validation(fe.Field(), "is required")
			}
			return apperr.Validation(fe.Field(), "failed %s=%s", fe.Tag(), fe.Param())
		}
		return apperr.Validation("", "%v", err)
	}
	if report.Timestamp.IsZero() {
		return apperr.Validation("timestamp", "is required")
	}
	if s.skew > 0 && report.Timestamp.After(s.clock.Now().Add(s.skew)) {
		return apperr.Validation("timestamp", "more than %s in the future", s.skew)
	}
	return nil
}

func (s *positionService) Ingest(ctx context.Context, report models.PositionReport) (IngestResult, error) {
	ctx, span := tracer.Start(ctx, "gps.ingest", trace.WithAttributes(attribute.String("vehicle.id", report.VehicleID)))
	defer span.End()

	var res IngestResult
	if err := s.check(report); err != nil {
		metrics.Add(ctx, metrics.PositionsIngested, 1, "result", "rejected")
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	sample := report.Sample()

	mustPersist := false
	cacheDown := false

	cached, found, err := s.cache.Get(ctx, sample.VehicleID)
	if err != nil {
		s.log.Warn("position cache read failed, persisting directly", "vehicle_id", sample.VehicleID, "error", err)
		metrics.Add(ctx, metrics.PositionsDegraded, 1, "reason", "cache")
		mustPersist, cacheDown = true, true
	} else if s.refresh.ShouldReplace(cached, found, sample) {
		if err := s.cache.Set(ctx, sample, s.refresh.TTL()); err != nil {
			s.log.Warn("position cache write failed, persisting directly", "vehicle_id", sample.VehicleID, "error", err)
			metrics.Add(ctx, metrics.PositionsDegraded, 1, "reason", "cache")
			mustPersist, cacheDown = true, true
		} else {
			res.Cached = true
		}
	}

	count, err := s.cache.Incr(ctx, sample.VehicleID)
	if err != nil {
		s.log.Warn("sampling counter failed, persisting directly", "vehicle_id", sample.VehicleID, "error", err)
		metrics.Add(ctx, metrics.PositionsDegraded, 1, "reason", "counter")
		mustPersist = true
	} else {
		res.Count = count
	}

	if mustPersist || s.sampling.ShouldPersist(count) {
		if err := s.repo.InsertPosition(ctx, sample); err != nil {
			metrics.Add(ctx, metrics.PositionsIngested, 1, "result", "failed")
			span.SetStatus(codes.Error, err.Error())
			return res, fmt.Errorf("persist position %s: %w", sample.VehicleID, err)
		}
		res.Persisted = true
		metrics.Add(ctx, metrics.PositionsPersisted, 1, "", "")
	}

	// An older sample the cache refused is stored but not broadcast, so
	// observers never move backwards.
	if res.Cached || cacheDown {
		s.publish(ctx, sample)
	}

	metrics.Add(ctx, metrics.PositionsIngested, 1, "result", "accepted")
	span.SetAttributes(attribute.Bool("gps.persisted", res.Persisted), attribute.Bool("gps.cached", res.Cached))
	return res, nil
}

// publish failures are logged and swallowed; the report is already accepted.
func (s *positionService) publish(ctx context.Context, sample models.PositionSample) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Emit(ctx, rooms.Bus(sample.VehicleID), envelope.EventBusLocation, sample); err != nil {
		s.log.Warn("bus location publish failed", "vehicle_id", sample.VehicleID, "error", err)
	}
	if err := s.pub.Emit(ctx, rooms.All, envelope.EventNewLocationUpdate, sample); err != nil {
		s.log.Warn("location update publish failed", "vehicle_id", sample.VehicleID, "error", err)
	}
}

func (s *positionService) CurrentPosition(ctx context.Context, vehicleID string) (models.PositionSample, bool, error) {
	if vehicleID == "" {
		return models.PositionSample{}, false, apperr.Validation("vehicleId", "is required")
	}
	sample, ok, err := s.cache.Get(ctx, vehicleID)
	if err != nil {
		return sample, false, apperr.Transient("read position", err)
	}
	return sample, ok, nil
}

func (s *positionService) History(ctx context.Context, vehicleID string, from, to time.Time, limit int) ([]models.PositionSample, error) {
	if vehicleID == "" {
		return nil, apperr.Validation("vehicleId", "is required")
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, apperr.Validation("startTime", "must not be after endTime")
	}
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}
	return s.repo.History(ctx, vehicleID, from, to, limit)
}

func (s *positionService) LivePositions(ctx context.Context) ([]models.PositionSample, error) {
	samples, err := s.cache.List(ctx)
	if err != nil {
		return nil, apperr.Transient("list positions", err)
	}
	return samples, nil
}
