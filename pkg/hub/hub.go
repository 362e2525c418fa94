package hub

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/gofiber/contrib/websocket"

	"fleetdispatch/pkg/apperr"
	"fleetdispatch/pkg/broker"
	"fleetdispatch/pkg/envelope"
	"fleetdispatch/pkg/metrics"
	"fleetdispatch/pkg/models"
	"fleetdispatch/pkg/rooms"
)

// Conn is the part of a websocket connection the hub needs.
// *websocket.Conn from gofiber/contrib satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// ActionHandler serves one client event. The returned value is sent back as
// "<event>.ok"; an error becomes an error envelope.
type ActionHandler func(ctx context.Context, from models.Identity, env envelope.Envelope) (any, error)

// RoomResolver lists the extra rooms a user joins on connect, such as the
// bus rooms of a driver's vehicles.
type RoomResolver interface {
	Rooms(ctx context.Context, id models.Identity) ([]string, error)
}

// TripLookup finds the trip behind a join_trip_room request.
type TripLookup interface {
	GetTrip(ctx context.Context, id string) (models.Trip, error)
}

type Options struct {
	SendBuffer  int
	DedupWindow int
	Resolver    RoomResolver
	Trips       TripLookup
}

type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	rooms   map[string]map[*client]struct{}

	handlers   map[string]ActionHandler
	resolver   RoomResolver
	trips      TripLookup
	sendBuffer int
	seen       *dedup
	log        *slog.Logger
}

func New(opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	return &Hub{
		clients:    make(map[*client]struct{}),
		rooms:      make(map[string]map[*client]struct{}),
		handlers:   make(map[string]ActionHandler),
		resolver:   opts.Resolver,
		trips:      opts.Trips,
		sendBuffer: opts.SendBuffer,
		seen:       newDedup(opts.DedupWindow),
		log:        slog.Default().With("component", "hub"),
	}
}

// On registers a handler for a client event. Register before serving.
func (h *Hub) On(event string, fn ActionHandler) {
	h.handlers[event] = fn
}

// Serve runs one connection until it closes or ctx ends. A connection without
// an identity is refused.
func (h *Hub) Serve(ctx context.Context, conn Conn, id models.Identity) {
	if id.UserID == "" {
		refusal := envelope.NewError(envelope.Envelope{}, http.StatusUnauthorized, "authentication required")
		if raw, err := refusal.Marshal(); err == nil {
			conn.WriteMessage(websocket.TextMessage, raw)
		}
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := newClient(conn, id, h.sendBuffer)
	h.register(c)
	defer h.unregister(c)

	go c.writeLoop(h.log)
	go func() {
		select {
		case <-ctx.Done():
			c.close()
		case <-c.done:
		}
	}()

	h.autoJoin(ctx, c)
	h.log.Info("client connected", "user_id", id.UserID, "role", id.Role, "total", h.ClientCount())

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := envelope.Unmarshal(raw)
		if err != nil || env.Event == "" {
			h.send(c, envelope.NewError(envelope.Envelope{}, http.StatusBadRequest, "invalid JSON envelope"))
			continue
		}
		h.dispatch(ctx, c, env)
	}
}

func (h *Hub) dispatch(ctx context.Context, c *client, env envelope.Envelope) {
	var (
		data any
		err  error
	)

	switch env.Event {
	case envelope.EventPing:
		pong, _ := envelope.NewEvent(envelope.EventPong, map[string]int64{"ts": env.Timestamp})
		pong.ReplyTo = env.ID
		h.send(c, pong)
		return
	case envelope.EventJoinBusRoom, envelope.EventLeaveBusRoom:
		data, err = h.busRoom(c, env)
	case envelope.EventJoinCompanyRoom:
		data, err = h.companyRoom(c, env)
	case envelope.EventJoinTripRoom, envelope.EventLeaveTripRoom:
		data, err = h.tripRoom(ctx, c, env)
	default:
		handler, ok := h.handlers[env.Event]
		if !ok {
			h.send(c, envelope.NewError(env, http.StatusNotFound, "unknown event: "+env.Event))
			return
		}
		data, err = handler(ctx, c.identity, env)
	}

	if err != nil {
		code, msg := apperr.Status(err)
		if code == http.StatusInternalServerError {
			h.log.Error("event handler failed", "event", env.Event, "user_id", c.identity.UserID, "error", err)
		}
		h.send(c, envelope.NewError(env, code, msg))
		return
	}

	reply, err := envelope.NewReply(env, data)
	if err != nil {
		h.log.Error("reply marshal failed", "event", env.Event, "error", err)
		return
	}
	h.send(c, reply)
}

type busRoomRequest struct {
	BusID string `json:"busId"`
}

type companyRoomRequest struct {
	CompanyID string `json:"companyId"`
}

type tripRoomRequest struct {
	TripID string `json:"tripId"`
}

type roomAck struct {
	Room string `json:"room"`
}

func (h *Hub) busRoom(c *client, env envelope.Envelope) (any, error) {
	req, err := envelope.ParseData[busRoomRequest](env)
	if err != nil || req.BusID == "" {
		return nil, apperr.Validation("busId", "is required")
	}
	room := rooms.Bus(req.BusID)
	if env.Event == envelope.EventJoinBusRoom {
		h.join(c, room)
	} else {
		h.leave(c, room)
	}
	return roomAck{Room: room}, nil
}

func (h *Hub) companyRoom(c *client, env envelope.Envelope) (any, error) {
	req, err := envelope.ParseData[companyRoomRequest](env)
	if err != nil || req.CompanyID == "" {
		return nil, apperr.Validation("companyId", "is required")
	}
	if req.CompanyID != c.identity.CompanyID && !c.identity.Is(models.RoleAdmin) {
		return nil, &apperr.ForbiddenError{Reason: "not a member of company " + req.CompanyID}
	}
	room := rooms.Company(req.CompanyID)
	h.join(c, room)
	return roomAck{Room: room}, nil
}

// tripRoom admits admins and the staff of the trip's company. Leaving is
// always allowed.
func (h *Hub) tripRoom(ctx context.Context, c *client, env envelope.Envelope) (any, error) {
	req, err := envelope.ParseData[tripRoomRequest](env)
	if err != nil || req.TripID == "" {
		return nil, apperr.Validation("tripId", "is required")
	}
	room := rooms.Trip(req.TripID)
	if env.Event == envelope.EventLeaveTripRoom {
		h.leave(c, room)
		return roomAck{Room: room}, nil
	}

	id := c.identity
	if !id.Is(models.RoleAdmin) {
		if !id.Is(models.RoleOperator, models.RoleDriver) || h.trips == nil {
			return nil, &apperr.ForbiddenError{Reason: "trip rooms are for company staff"}
		}
		trip, err := h.trips.GetTrip(ctx, req.TripID)
		if err != nil {
			return nil, err
		}
		if trip.CompanyID != id.CompanyID {
			return nil, &apperr.ForbiddenError{Reason: "trip " + req.TripID + " belongs to another company"}
		}
	}
	h.join(c, room)
	return roomAck{Room: room}, nil
}

func (h *Hub) autoJoin(ctx context.Context, c *client) {
	id := c.identity
	h.join(c, rooms.All)
	h.join(c, rooms.User(id.UserID))
	if id.Role != "" {
		h.join(c, rooms.Role(id.Role))
	}
	if id.CompanyID != "" {
		h.join(c, rooms.Company(id.CompanyID))
	}
	if id.SiteID != "" {
		h.join(c, rooms.Site(id.SiteID))
	}

	if h.resolver == nil {
		return
	}
	extra, err := h.resolver.Rooms(ctx, id)
	if err != nil {
		h.log.Warn("room resolution failed", "user_id", id.UserID, "error", err)
		return
	}
	for _, room := range extra {
		h.join(c, room)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.HubConnections.Add(context.Background(), 1)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	for room := range c.rooms {
		h.removeMember(room, c)
	}
	c.rooms = nil
	h.mu.Unlock()

	c.close()
	metrics.HubConnections.Add(context.Background(), -1)
	h.log.Info("client disconnected", "user_id", c.identity.UserID, "total", h.ClientCount())
}

// join and leave are idempotent.
func (h *Hub) join(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.rooms == nil {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leave(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.rooms == nil {
		return
	}
	delete(c.rooms, room)
	h.removeMember(room, c)
}

// removeMember expects h.mu held.
func (h *Hub) removeMember(room string, c *client) {
	members := h.rooms[room]
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) send(c *client, env envelope.Envelope) {
	raw, err := env.Marshal()
	if err != nil {
		return
	}
	if !c.enqueue(raw) {
		metrics.Add(context.Background(), metrics.EventsDropped, 1, "event", env.Event)
	}
}

// Deliver queues env on every local connection in room. Slow connections
// drop the event; nothing here blocks on a socket.
func (h *Hub) Deliver(room string, env envelope.Envelope) int {
	raw, err := env.Marshal()
	if err != nil {
		h.log.Error("deliver marshal failed", "event", env.Event, "error", err)
		return 0
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.enqueue(raw) {
			delivered++
		}
	}

	ctx := context.Background()
	metrics.Add(ctx, metrics.EventsDelivered, int64(delivered), "event", env.Event)
	if dropped := len(targets) - delivered; dropped > 0 {
		metrics.Add(ctx, metrics.EventsDropped, int64(dropped), "event", env.Event)
		h.log.Debug("events dropped for slow connections", "room", room, "event", env.Event, "dropped", dropped)
	}
	return delivered
}

// Receive is the broker callback: it drops envelopes already seen in the
// dedup window and delivers the rest locally.
func (h *Hub) Receive(b broker.Broadcast) {
	if b.Envelope.ID != "" && !h.seen.add(b.Room+"|"+b.Envelope.ID) {
		return
	}
	h.Deliver(b.Room, b.Envelope)
}

// Listen subscribes the hub to the broadcast channel.
func (h *Hub) Listen(ctx context.Context, em *broker.Emitter) error {
	return em.Listen(ctx, h.Receive)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type Status struct {
	Connections int            `json:"connections"`
	Rooms       int            `json:"rooms"`
	Users       int            `json:"users"`
	Members     map[string]int `json:"members,omitempty"`
}

// Status reports connection and room counts. Members is keyed by room kind
// (bus, user, company, ...).
func (h *Hub) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make(map[string]struct{})
	for c := range h.clients {
		users[c.identity.UserID] = struct{}{}
	}
	members := make(map[string]int)
	for room, set := range h.rooms {
		members[roomKind(room)] += len(set)
	}
	return Status{Connections: len(h.clients), Rooms: len(h.rooms), Users: len(users), Members: members}
}

// RoomsOf lists the rooms a user's connections are in, sorted.
func (h *Hub) RoomsOf(userID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := make(map[string]struct{})
	for c := range h.clients {
		if c.identity.UserID != userID {
			continue
		}
		for room := range c.rooms {
			set[room] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for room := range set {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

func roomKind(room string) string {
	for i := 0; i < len(room); i++ {
		if room[i] == ':' {
			return room[:i]
		}
	}
	return room
}
