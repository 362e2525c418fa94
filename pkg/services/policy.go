package services

import (
	"time"

	"fleetdispatch/pkg/models"
)

// RefreshPolicy decides whether an incoming sample replaces the cached one.
type RefreshPolicy interface {
	ShouldReplace(cached models.PositionSample, found bool, incoming models.PositionSample) bool
	TTL() time.Duration
}

// SamplingPolicy decides from the per-vehicle report count whether a sample
// goes to durable history.
type SamplingPolicy interface {
	ShouldPersist(count int64) bool
}

// LatestWins keeps the newest sample by device timestamp. An out-of-order
// report never regresses the live position.
type LatestWins struct {
	Expiry time.Duration
}

func (p LatestWins) ShouldReplace(cached models.PositionSample, found bool, incoming models.PositionSample) bool {
	return !found || !cached.Timestamp.After(incoming.Timestamp)
}

func (p LatestWins) TTL() time.Duration { return p.Expiry }

// EveryNth persists the Nth, 2Nth, ... report of each vehicle.
type EveryNth struct {
	N int64
}

func (p EveryNth) ShouldPersist(count int64) bool {
	if p.N <= 1 {
		return true
	}
	return count > 0 && count%p.N == 0
}
