// Package gateway exposes a running workflow's event bus to external
// observers (a browser UI, a remote dashboard, a test client) over a
// WebSocket connection. The orchestrator core never depends on this
// package; nothing about step execution changes if no gateway is attached.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cortexforge/agentflow/internal/bus"
	"github.com/cortexforge/agentflow/internal/logging"
)

const (
	// DefaultPort is the default port for the event gateway.
	DefaultPort = 8765

	// WebSocketEndpoint is the path WebSocket clients connect to.
	WebSocketEndpoint = "/events"

	// HealthEndpoint is the path for health checks.
	HealthEndpoint = "/health"

	// WriteWait is the timeout for writing to a WebSocket.
	WriteWait = 10 * time.Second

	// PongWait is the timeout for pong responses.
	PongWait = 60 * time.Second

	// PingPeriod is how often to send ping frames.
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize is the maximum inbound message size accepted from a client.
	MaxMessageSize = 512
)

// Config configures a Gateway.
type Config struct {
	Port          int
	ReplayHistory bool
	HistoryCount  int
}

// DefaultConfig returns the default gateway configuration.
func DefaultConfig() Config {
	return Config{
		Port:          DefaultPort,
		ReplayHistory: true,
		HistoryCount:  100,
	}
}

// Gateway is a WebSocket server that fans out a Bus's events to any
// number of connected clients. It subscribes once, via SubscribeAll, and
// forwards every event verbatim as JSON.
type Gateway struct {
	bus      *bus.Bus
	port     int
	upgrader websocket.Upgrader
	server   *http.Server
	subID    bus.SubscriptionID

	clients    map[*client]bool
	clientsMu  sync.RWMutex
	register   chan *client
	unregister chan *client

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	runningMu sync.RWMutex
}

// client represents a single WebSocket connection.
type client struct {
	conn          *websocket.Conn
	send          chan []byte
	replayHistory bool
	historyCount  int
}

// New creates a gateway attached to bus b. Call Start to begin serving.
func New(b *bus.Bus, cfg Config) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())

	return &Gateway{
		bus:  b,
		port: cfg.Port,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins serving the gateway's HTTP/WebSocket endpoints.
func (g *Gateway) Start() error {
	g.runningMu.Lock()
	if g.running {
		g.runningMu.Unlock()
		return fmt.Errorf("gateway already running")
	}
	g.running = true
	g.runningMu.Unlock()

	g.subID = g.bus.SubscribeAll(g.handleBusEvent)

	g.wg.Add(1)
	go g.runClientManager()

	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketEndpoint, g.handleWebSocket)
	mux.HandleFunc(HealthEndpoint, g.handleHealth)

	corsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		mux.ServeHTTP(w, r)
	})

	g.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", g.port),
		Handler: corsHandler,
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		logging.Global().WithComponent("gateway").Info("listening on :%d", g.port)
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Global().WithComponent("gateway").Error("server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the gateway down, closing all client connections.
func (g *Gateway) Stop() error {
	g.runningMu.Lock()
	if !g.running {
		g.runningMu.Unlock()
		return nil
	}
	g.running = false
	g.runningMu.Unlock()

	_ = g.bus.Unsubscribe(g.subID)
	g.cancel()

	g.clientsMu.Lock()
	for c := range g.clients {
		close(c.send)
		delete(g.clients, c)
	}
	g.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}

	g.wg.Wait()
	return nil
}

// ClientCount returns the number of currently connected WebSocket clients.
func (g *Gateway) ClientCount() int {
	g.clientsMu.RLock()
	defer g.clientsMu.RUnlock()
	return len(g.clients)
}

func (g *Gateway) runClientManager() {
	defer g.wg.Done()

	for {
		select {
		case c := <-g.register:
			g.clientsMu.Lock()
			g.clients[c] = true
			g.clientsMu.Unlock()
			if c.replayHistory {
				g.replayHistoryTo(c)
			}

		case c := <-g.unregister:
			g.clientsMu.Lock()
			if _, ok := g.clients[c]; ok {
				delete(g.clients, c)
				close(c.send)
				c.conn.Close()
			}
			g.clientsMu.Unlock()

		case <-g.ctx.Done():
			return
		}
	}
}

func (g *Gateway) replayHistoryTo(c *client) {
	for _, event := range g.bus.GetHistorySlice(c.historyCount) {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		select {
		case c.send <- data:
		default:
			return
		}
	}
}

func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	replay := r.URL.Query().Get("replay") != "false"
	count := 100
	if n := r.URL.Query().Get("count"); n != "" {
		fmt.Sscanf(n, "%d", &count)
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Global().WithComponent("gateway").Error("upgrade failed: %v", err)
		return
	}

	c := &client{
		conn:          conn,
		send:          make(chan []byte, 256),
		replayHistory: replay,
		historyCount:  count,
	}

	g.register <- c

	g.wg.Add(2)
	go g.writePump(c)
	go g.readPump(c)
}

func (g *Gateway) writePump(c *client) {
	defer g.wg.Done()

	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-g.ctx.Done():
			return
		}
	}
}

func (g *Gateway) readPump(c *client) {
	defer g.wg.Done()
	defer func() { g.unregister <- c }()

	c.conn.SetReadLimit(MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Global().WithComponent("gateway").Error("read error: %v", err)
			}
			break
		}
		// Clients are observers only; inbound frames besides pong are ignored.
	}
}

func (g *Gateway) handleBusEvent(event bus.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logging.Global().WithComponent("gateway").Error("failed to marshal event: %v", err)
		return
	}

	g.clientsMu.RLock()
	clients := make([]*client, 0, len(g.clients))
	for c := range g.clients {
		clients = append(clients, c)
	}
	g.clientsMu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			g.unregister <- c
		}
	}
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := struct {
		Status      string `json:"status"`
		Service     string `json:"service"`
		Port        int    `json:"port"`
		Clients     int    `json:"clients"`
		Subscribers int    `json:"bus_subscriptions"`
		HistorySize int    `json:"history_size"`
	}{
		Status:      "healthy",
		Service:     "agentflow-gateway",
		Port:        g.port,
		Clients:     g.ClientCount(),
		Subscribers: g.bus.SubscriptionsCount(),
		HistorySize: len(g.bus.GetHistory()),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}
