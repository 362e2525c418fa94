package cache

import (
	"context"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"fleetdispatch/pkg/models"
)

const (
	positionPrefix = "gps:pos:"
	counterPrefix  = "gps:count:"
)

// Positions is the Redis-backed Position Cache. Each vehicle's latest sample
// lives under its own key with a TTL, so stale vehicles expire on their own.
type Positions struct {
	redis      *Redis
	counterTTL time.Duration
}

func NewPositions(r *Redis, counterTTL time.Duration) *Positions {
	return &Positions{redis: r, counterTTL: counterTTL}
}

func (p *Positions) Get(ctx context.Context, vehicleID string) (models.PositionSample, bool, error) {
	var msg structpb.Struct
	ok, err := p.redis.GetProto(ctx, positionPrefix+vehicleID, &msg)
	if err != nil || !ok {
		return models.PositionSample{}, false, err
	}
	return decodeSample(&msg), true, nil
}

func (p *Positions) Set(ctx context.Context, s models.PositionSample, ttl time.Duration) error {
	msg, err := encodeSample(s)
	if err != nil {
		return err
	}
	return p.redis.SetProto(ctx, positionPrefix+s.VehicleID, msg, ttl)
}

func (p *Positions) List(ctx context.Context) ([]models.PositionSample, error) {
	keys, err := p.redis.Keys(ctx, positionPrefix+"*")
	if err != nil {
		return nil, err
	}

	samples := make([]models.PositionSample, 0, len(keys))
	for _, k := range keys {
		s, ok, err := p.Get(ctx, strings.TrimPrefix(k, positionPrefix))
		if err != nil {
			return nil, err
		}
		// expired between SCAN and GET
		if !ok {
			continue
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// Incr bumps the per-vehicle report counter used by the sampling policy.
func (p *Positions) Incr(ctx context.Context, vehicleID string) (int64, error) {
	return p.redis.Incr(ctx, counterPrefix+vehicleID, p.counterTTL)
}

func encodeSample(s models.PositionSample) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"vehicle_id": s.VehicleID,
		"lat":        s.Latitude,
		"lon":        s.Longitude,
		"speed":      s.Speed,
		"ts":         float64(s.Timestamp.UnixMilli()),
	})
}

func decodeSample(msg *structpb.Struct) models.PositionSample {
	f := msg.GetFields()
	return models.PositionSample{
		VehicleID: f["vehicle_id"].GetStringValue(),
		Latitude:  f["lat"].GetNumberValue(),
		Longitude: f["lon"].GetNumberValue(),
		Speed:     f["speed"].GetNumberValue(),
		Timestamp: time.UnixMilli(int64(f["ts"].GetNumberValue())).UTC(),
	}
}
