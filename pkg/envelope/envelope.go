package envelope

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Server -> client events.
const (
	EventBusLocation       = "bus_location"
	EventNewLocationUpdate = "new_location_update"
	EventAttendanceUpdated = "attendance_updated"
	EventNewNotification   = "new_notification"
	EventTripStatus        = "trip_status_updated"
	EventError             = "error"
	EventPong              = "pong"
)

// Client -> server events.
const (
	EventJoinBusRoom     = "join_bus_room"
	EventLeaveBusRoom    = "leave_bus_room"
	EventJoinCompanyRoom = "join_company_room"
	EventJoinTripRoom    = "join_trip_room"
	EventLeaveTripRoom   = "leave_trip_room"
	EventGPSUpdate       = "gps_update"
	EventPing            = "ping"
)

type Envelope struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	ReplyTo   string          `json:"reply_to,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *ErrorPayload   `json:"error,omitempty"`
	Timestamp int64           `json:"ts"`
}

type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func New(event string) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Event:     event,
		Timestamp: time.Now().UnixMilli(),
	}
}

func NewEvent(event string, data any) (Envelope, error) {
	e := New(event)
	raw, err := json.Marshal(data)
	if err != nil {
		return e, err
	}
	e.Data = raw
	return e, nil
}

// NewReply acknowledges a client event as "<event>.ok".
func NewReply(original Envelope, data any) (Envelope, error) {
	e, err := NewEvent(original.Event+".ok", data)
	e.ReplyTo = original.ID
	return e, err
}

func NewError(original Envelope, code int, message string) Envelope {
	e := New(EventError)
	e.ReplyTo = original.ID
	e.Error = &ErrorPayload{Code: code, Message: message}
	return e
}

func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(data, &e)
	return e, err
}

func ParseData[T any](e Envelope) (T, error) {
	var v T
	err := json.Unmarshal(e.Data, &v)
	return v, err
}
