package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/fasthttp/websocket"

	"fleetdispatch/pkg/envelope"
)

// Observer is a client of the gateway: it dials /ws with a bearer token,
// joins bus rooms and hands every server event to a callback. It reconnects
// until its context ends and re-joins its rooms after each reconnect.
type Observer struct {
	url     string
	token   string
	dialer  *websocket.Dialer
	backoff time.Duration
	log     *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	buses   map[string]struct{}
	onEvent func(envelope.Envelope)
}

func NewObserver(gatewayURL, token string) *Observer {
	return &Observer{
		url:     gatewayURL,
		token:   token,
		dialer:  websocket.DefaultDialer,
		backoff: 3 * time.Second,
		buses:   make(map[string]struct{}),
		log:     slog.Default().With("component", "observer"),
	}
}

// OnEvent registers the callback for server events. Call before Run.
func (o *Observer) OnEvent(fn func(envelope.Envelope)) {
	o.onEvent = fn
}

// Run connects and keeps the connection alive until ctx is cancelled.
func (o *Observer) Run(ctx context.Context) error {
	for {
		if err := o.dial(ctx); err != nil {
			o.log.Warn("connect failed", "url", o.url, "error", err, "retry_in", o.backoff)
		} else {
			o.log.Info("connected", "url", o.url)
			o.rejoin()
			o.readLoop(ctx)
			o.log.Info("disconnected")
		}

		select {
		case <-ctx.Done():
			o.closeConn()
			return ctx.Err()
		case <-time.After(o.backoff):
		}
	}
}

func (o *Observer) dial(ctx context.Context) error {
	u, err := url.Parse(o.url)
	if err != nil {
		return err
	}

	header := http.Header{}
	if o.token != "" {
		header.Set("Authorization", "Bearer "+o.token)
	}

	conn, resp, err := o.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return err
	}

	o.mu.Lock()
	o.conn = conn
	o.mu.Unlock()
	return nil
}

func (o *Observer) readLoop(ctx context.Context) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			o.closeConn()
		case <-stop:
		}
	}()

	for {
		o.mu.Lock()
		conn := o.conn
		o.mu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			o.closeConn()
			return
		}
		env, err := envelope.Unmarshal(raw)
		if err != nil {
			o.log.Debug("dropping malformed frame", "error", err)
			continue
		}
		if o.onEvent != nil {
			o.onEvent(env)
		}
	}
}

// JoinBus joins bus:<vehicleID> now if connected and after every reconnect.
func (o *Observer) JoinBus(vehicleID string) error {
	o.mu.Lock()
	o.buses[vehicleID] = struct{}{}
	o.mu.Unlock()
	return o.Send(envelope.EventJoinBusRoom, map[string]string{"busId": vehicleID})
}

func (o *Observer) LeaveBus(vehicleID string) error {
	o.mu.Lock()
	delete(o.buses, vehicleID)
	o.mu.Unlock()
	return o.Send(envelope.EventLeaveBusRoom, map[string]string{"busId": vehicleID})
}

func (o *Observer) rejoin() {
	o.mu.Lock()
	buses := make([]string, 0, len(o.buses))
	for id := range o.buses {
		buses = append(buses, id)
	}
	o.mu.Unlock()

	for _, id := range buses {
		if err := o.Send(envelope.EventJoinBusRoom, map[string]string{"busId": id}); err != nil {
			o.log.Warn("rejoin failed", "bus", id, "error", err)
		}
	}
}

// Send writes a client event. It is a no-op while disconnected.
func (o *Observer) Send(event string, data any) error {
	env, err := envelope.NewEvent(event, data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conn == nil {
		return nil
	}
	return o.conn.WriteMessage(websocket.TextMessage, raw)
}

func (o *Observer) closeConn() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conn != nil {
		o.conn.Close()
		o.conn = nil
	}
}
