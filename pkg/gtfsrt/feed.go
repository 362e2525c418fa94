// Package gtfsrt renders the live position cache as a GTFS-Realtime
// VehiclePositions feed.
package gtfsrt

import (
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"fleetdispatch/pkg/models"
)

const ContentType = "application/x-protobuf"

// BuildFeed returns a FULL_DATASET FeedMessage with one entity per sample.
func BuildFeed(samples []models.PositionSample, now time.Time) *gtfsrtpb.FeedMessage {
	feed := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfsrtpb.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
		Entity: make([]*gtfsrtpb.FeedEntity, 0, len(samples)),
	}

	for _, s := range samples {
		if s.VehicleID == "" {
			continue
		}
		vp := &gtfsrtpb.VehiclePosition{
			Vehicle: &gtfsrtpb.VehicleDescriptor{Id: proto.String(s.VehicleID)},
			Position: &gtfsrtpb.Position{
				Latitude:  proto.Float32(float32(s.Latitude)),
				Longitude: proto.Float32(float32(s.Longitude)),
				Speed:     proto.Float32(float32(s.Speed)),
			},
		}
		if !s.Timestamp.IsZero() {
			vp.Timestamp = proto.Uint64(uint64(s.Timestamp.Unix()))
		}
		feed.Entity = append(feed.Entity, &gtfsrtpb.FeedEntity{
			Id:      proto.String(s.VehicleID),
			Vehicle: vp,
		})
	}
	return feed
}

// Encode marshals the feed for GET /gps/feed.
func Encode(samples []models.PositionSample, now time.Time) ([]byte, error) {
	return proto.Marshal(BuildFeed(samples, now))
}
