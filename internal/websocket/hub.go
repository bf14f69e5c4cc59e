package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

const (
	writeWait        = 10 * time.Second
	subscribeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client serializes writes to one websocket connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) writeLocked(data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(data)
}

// subscription is the redis subscription shared by every client of a
// channel. ready is closed once redis has confirmed it, or err is set.
type subscription struct {
	cancel context.CancelFunc
	ready  chan struct{}
	err    error
}

// Hub forwards redis pub/sub channels to websocket clients. One redis
// subscription is held per channel while at least one client listens.
type Hub struct {
	mu            sync.RWMutex
	connections   map[string][]*client
	subscriptions map[string]*subscription
	redisClient   *redis.Client
	logger        *slog.Logger
}

func NewHub(redisClient *redis.Client) *Hub {
	return &Hub{
		connections:   make(map[string][]*client),
		subscriptions: make(map[string]*subscription),
		redisClient:   redisClient,
		logger:        slog.Default().With("component", "websocket"),
	}
}

// Serve upgrades the request and streams channel to the client. When
// initial is non-nil it is sent first as a snapshot. The channel is
// subscribed before the snapshot is written, so no event published after
// the snapshot was taken can be missed.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, channel string, initial interface{}) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "channel", channel, "error", err)
		return
	}

	c := &client{conn: conn}

	// Broadcasts to c wait on c.mu until the snapshot is out.
	c.mu.Lock()
	if err := h.registerConnection(channel, c); err != nil {
		c.mu.Unlock()
		h.logger.Warn("websocket subscribe failed", "channel", channel, "error", err)
		h.unregisterConnection(channel, c)
		return
	}
	if initial != nil {
		data, err := json.Marshal(initial)
		if err == nil {
			err = c.writeLocked(data)
		}
		if err != nil {
			c.mu.Unlock()
			h.unregisterConnection(channel, c)
			return
		}
	}
	c.mu.Unlock()

	go func() {
		defer h.unregisterConnection(channel, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// registerConnection adds c to channel and waits until the channel's redis
// subscription is confirmed.
func (h *Hub) registerConnection(channel string, c *client) error {
	h.mu.Lock()
	h.connections[channel] = append(h.connections[channel], c)

	sub, ok := h.subscriptions[channel]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		sub = &subscription{cancel: cancel, ready: make(chan struct{})}
		h.subscriptions[channel] = sub
		go h.subscribeToPubSub(ctx, channel, sub)
	}
	total := len(h.connections[channel])
	h.mu.Unlock()

	<-sub.ready
	if sub.err != nil {
		return sub.err
	}

	h.logger.Debug("websocket connected", "channel", channel, "total", total)
	return nil
}

func (h *Hub) unregisterConnection(channel string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()

	conns := h.connections[channel]
	for i, existing := range conns {
		if existing == c {
			h.connections[channel] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	if len(h.connections[channel]) == 0 {
		delete(h.connections, channel)
		if sub, ok := h.subscriptions[channel]; ok {
			sub.cancel()
			delete(h.subscriptions, channel)
		}
	}

	h.logger.Debug("websocket disconnected", "channel", channel)
}

func (h *Hub) subscribeToPubSub(ctx context.Context, channel string, sub *subscription) {
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	receiveCtx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	_, err := pubsub.Receive(receiveCtx)
	cancel()
	if err != nil {
		sub.err = err
		close(sub.ready)
		return
	}
	close(sub.ready)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(channel, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(channel string, data []byte) {
	h.mu.RLock()
	clients := append([]*client(nil), h.connections[channel]...)
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			h.logger.Debug("websocket write failed", "channel", channel, "error", err)
		}
	}
}

// Listeners reports how many clients are attached to channel.
func (h *Hub) Listeners(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[channel])
}

// Shutdown closes every client connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for channel, conns := range h.connections {
		for _, c := range conns {
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			c.conn.Close()
		}
		if sub, ok := h.subscriptions[channel]; ok {
			sub.cancel()
		}
	}
	h.connections = make(map[string][]*client)
	h.subscriptions = make(map[string]*subscription)
}
