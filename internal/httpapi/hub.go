package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"texstream/internal/streaming"
	"texstream/pkg/types"
)

const (
	defaultFeedInterval = time.Second
	defaultFeedBuffer   = 256
	feedWriteWait       = 5 * time.Second
	feedPongWait        = 60 * time.Second
	feedPingPeriod      = feedPongWait * 9 / 10
)

// HubConfig configures the /ws feed.
type HubConfig struct {
	// Status is polled every Interval and broadcast to every client.
	Status   func() types.StatusResponse
	Interval time.Duration
	// Buffer is the per-client queue; a full queue drops messages. It holds
	// at least the hello and the first status.
	Buffer int
	Logger zerolog.Logger
}

// Hub fans streaming events and periodic status out to websocket clients.
// It is a streaming.EventPublisher.
type Hub struct {
	cfg      HubConfig
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*feedClient]struct{}
}

type feedClient struct {
	id   string
	send chan []byte
	done chan struct{}
}

var _ streaming.EventPublisher = (*Hub)(nil)

func NewHub(cfg HubConfig) *Hub {
	// Apply defaults if unset
	if cfg.Interval <= 0 {
		cfg.Interval = defaultFeedInterval
	}
	if cfg.Buffer < 2 {
		cfg.Buffer = defaultFeedBuffer
	}
	return &Hub{
		cfg: cfg,
		log: cfg.Logger.With().Str("component", "ws_feed").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     checkFeedOrigin,
		},
		clients: make(map[*feedClient]struct{}),
	}
}

// checkFeedOrigin accepts same-host requests and, when CORS is enabled, the
// configured origins.
func checkFeedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if corsEnabled {
		for _, o := range corsAllowedOrigins {
			if o == "*" || o == origin {
				return true
			}
		}
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// NumClients returns the number of connected clients.
func (h *Hub) NumClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish forwards e to every client without blocking.
func (h *Hub) Publish(e streaming.Event) {
	h.broadcast(types.FeedMessage{
		Type: types.FeedEvent,
		Event: &types.EventMessage{
			Name:    e.Name,
			Texture: e.Texture,
			Fields:  e.Fields,
			Time:    time.Now().UnixMilli(),
		},
	}, types.FeedEvent)
}

func (h *Hub) broadcast(msg types.FeedMessage, kind string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		h.log.Warn().Err(err).Str("kind", kind).Msg("feed message not encodable")
		return
	}
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			incrementWSDropped(kind)
		}
	}
}

// Run broadcasts the status every interval until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.removeLocked(c)
			}
			h.mu.Unlock()
			return
		case <-t.C:
			if h.cfg.Status == nil || h.NumClients() == 0 {
				continue
			}
			st := h.cfg.Status()
			h.broadcast(types.FeedMessage{Type: types.FeedStatus, Status: &st}, types.FeedStatus)
		}
	}
}

func (h *Hub) add(c *feedClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	wsClients.Set(float64(n))
}

func (h *Hub) remove(c *feedClient) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

func (h *Hub) removeLocked(c *feedClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.done)
	wsClients.Set(float64(len(h.clients)))
}

// ServeHTTP upgrades the connection and streams feed messages until the
// client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	c := &feedClient{
		id:   uuid.NewString(),
		send: make(chan []byte, h.cfg.Buffer),
		done: make(chan struct{}),
	}
	hello, _ := json.Marshal(types.FeedMessage{Type: types.FeedHello, Session: c.id})
	c.send <- hello
	if h.cfg.Status != nil {
		st := h.cfg.Status()
		if b, err := json.Marshal(types.FeedMessage{Type: types.FeedStatus, Session: c.id, Status: &st}); err == nil {
			c.send <- b
		}
	}
	h.add(c)
	defer h.remove(c)
	log := h.log.With().Str("session", c.id).Logger()
	log.Debug().Str("remote", r.RemoteAddr).Msg("feed client connected")

	writeErr := make(chan error, 1)
	go func() { writeErr <- h.writeLoop(conn, c) }()

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(feedPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			// Clients only send control frames; anything else is ignored.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-readDone:
		h.remove(c)
		<-writeErr
	case err := <-writeErr:
		if err != nil {
			log.Debug().Err(err).Msg("feed write failed")
		}
	}
	log.Debug().Msg("feed client disconnected")
}

func (h *Hub) writeLoop(conn *websocket.Conn, c *feedClient) error {
	ping := time.NewTicker(feedPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-c.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
			return nil
		case b := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return err
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteWait)); err != nil {
				return err
			}
		}
	}
}
