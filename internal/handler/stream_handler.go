package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/virtuex/exchange-backend/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type streamClient struct {
	hub  *TradeHub
	conn *websocket.Conn
	send chan []byte
}

type tradeEvent struct {
	Type  string        `json:"type"`
	Trade *models.Trade `json:"trade"`
}

// TradeHub pushes settled trades to every connected websocket client.
type TradeHub struct {
	clients    map[*streamClient]bool
	broadcast  chan *models.Trade
	register   chan *streamClient
	unregister chan *streamClient
	mu         sync.RWMutex
	log        *zap.Logger
}

func NewTradeHub(log *zap.Logger) *TradeHub {
	return &TradeHub{
		clients:    make(map[*streamClient]bool),
		broadcast:  make(chan *models.Trade, 256),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		log:        log,
	}
}

func (h *TradeHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug("stream client connected", zap.Int("clients", len(h.clients)))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.log.Debug("stream client disconnected", zap.Int("clients", len(h.clients)))

		case trade := <-h.broadcast:
			data, err := json.Marshal(tradeEvent{Type: "trade", Trade: trade})
			if err != nil {
				h.log.Warn("trade event marshal failed", zap.Error(err))
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Slow consumer: drop it rather than stall the hub.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastTrade hands a settled trade to the hub without blocking the matcher.
func (h *TradeHub) BroadcastTrade(trade *models.Trade) {
	select {
	case h.broadcast <- trade:
	default:
		h.log.Warn("trade broadcast buffer full, dropping event", zap.Int64("trade_id", trade.ID))
	}
}

func (h *TradeHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &streamClient{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *streamClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// The stream is one way. Reads only service control frames.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket read error", zap.Error(err))
			}
			break
		}
	}
}
