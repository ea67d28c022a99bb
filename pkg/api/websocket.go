package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var schedlogUpgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// schedlogHub fans a single stream of schedlog lines out to every
// connected WebSocket client, mirroring Scheduler.SetSchedlogSink's one
// line per dispatch.
type schedlogHub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]chan string

	lines  chan string
	stopCh chan struct{}
}

func newSchedlogHub(logger *slog.Logger) *schedlogHub {
	return &schedlogHub{
		logger:  logger,
		clients: make(map[*websocket.Conn]chan string),
		lines:   make(chan string, 256),
		stopCh:  make(chan struct{}),
	}
}

func (h *schedlogHub) run() {
	for {
		select {
		case line := <-h.lines:
			h.mu.RLock()
			for _, ch := range h.clients {
				select {
				case ch <- line:
				default:
					// Slow consumer: drop the line rather than block the
					// scheduler's own dispatch loop upstream.
				}
			}
			h.mu.RUnlock()
		case <-h.stopCh:
			return
		}
	}
}

func (h *schedlogHub) stop() {
	close(h.stopCh)
	h.mu.Lock()
	for conn, ch := range h.clients {
		conn.Close()
		close(ch)
	}
	h.clients = make(map[*websocket.Conn]chan string)
	h.mu.Unlock()
}

// broadcast is called from Scheduler.SetSchedlogSink with the scheduler's
// own mu held, so it must never block or call back into the Scheduler.
func (h *schedlogHub) broadcast(line string) {
	select {
	case h.lines <- line:
	default:
		h.logger.Warn("schedlog broadcast channel full, dropping line")
	}
}

func (h *schedlogHub) register(conn *websocket.Conn) chan string {
	ch := make(chan string, 64)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *schedlogHub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(ch)
	}
	h.mu.Unlock()
}

// schedlogWebsocketHandler streams schedlog lines to a connected client as
// they're emitted. A client that doesn't read fast enough has lines
// dropped, never backpressure onto the scheduler.
func (s *Server) schedlogWebsocketHandler(c *gin.Context) {
	conn, err := schedlogUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := s.hub.register(conn)
	defer s.hub.unregister(conn)

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case line, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
