package mesh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Frame types exchanged with the radio gateway over the websocket.
const (
	frameRx   = "rx"
	frameTx   = "tx"
	frameInfo = "info"
)

type gatewayFrame struct {
	Type        string  `json:"type"`
	SenderID    string  `json:"sender_id,omitempty"`
	SenderName  string  `json:"sender_name,omitempty"`
	Destination string  `json:"destination,omitempty"`
	Channel     int     `json:"channel"`
	Text        string  `json:"text,omitempty"`
	Direct      bool    `json:"direct,omitempty"`
	HopLimit    int     `json:"hop_limit,omitempty"`
	SNR         float64 `json:"snr,omitempty"`
	RSSI        int     `json:"rssi,omitempty"`
	LocalNodeID string  `json:"local_node_id,omitempty"`
	NodeCount   int     `json:"node_count,omitempty"`
}

// GatewayConfig configures the websocket link to the radio gateway process.
type GatewayConfig struct {
	URL               string
	MaxMessageLength  int
	MonitoredChannels []int
	DirectMessageOnly bool
	HandshakeTimeout  time.Duration
}

// GatewayClient talks to a radio gateway over a websocket, translating
// gateway frames into Messages and outbound Sends into tx frames. The
// gateway owns the serial link and its reconnect policy; this client owns
// nothing but the socket.
type GatewayClient struct {
	cfg GatewayConfig

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	localNode string
	nodeCount int
	handler   Handler

	done chan struct{}
}

func NewGatewayClient(cfg GatewayConfig) *GatewayClient {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 200
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &GatewayClient{cfg: cfg, done: make(chan struct{})}
}

func (c *GatewayClient) OnMessage(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *GatewayClient) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial gateway %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readPump()
	log.Printf("mesh: connected to gateway %s", c.cfg.URL)
	return nil
}

func (c *GatewayClient) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Send transmits a tx frame. Text longer than the configured packet limit
// is truncated with an ellipsis; the narrowband link drops oversized
// payloads silently otherwise.
func (c *GatewayClient) Send(text string, channel int, destination string) error {
	if max := c.cfg.MaxMessageLength; len(text) > max {
		text = text[:max-3] + "..."
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("mesh: not connected")
	}
	frame := gatewayFrame{
		Type:        frameTx,
		Text:        text,
		Channel:     channel,
		Destination: destination,
	}
	if err := c.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("write tx frame: %w", err)
	}
	return nil
}

func (c *GatewayClient) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Info{Connected: c.connected, LocalNodeID: c.localNode, NodeCount: c.nodeCount}
}

func (c *GatewayClient) readPump() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Printf("mesh: read error: %v", err)
				c.mu.Lock()
				c.connected = false
				c.mu.Unlock()
			}
			return
		}

		var frame gatewayFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("mesh: malformed frame: %v", err)
			continue
		}

		switch frame.Type {
		case frameInfo:
			c.mu.Lock()
			c.localNode = frame.LocalNodeID
			c.nodeCount = frame.NodeCount
			c.mu.Unlock()
		case frameRx:
			c.deliver(frame)
		}
	}
}

func (c *GatewayClient) deliver(frame gatewayFrame) {
	if !c.shouldProcess(frame.Channel, frame.Direct) {
		return
	}

	name := frame.SenderName
	if name == "" {
		name = frame.SenderID
	}
	msg := Message{
		ID:         uuid.NewString(),
		SenderID:   frame.SenderID,
		SenderName: name,
		Channel:    frame.Channel,
		Text:       frame.Text,
		RxTime:     time.Now().UTC(),
		Direct:     frame.Direct,
		HopLimit:   frame.HopLimit,
		SNR:        frame.SNR,
		RSSI:       frame.RSSI,
	}

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

// shouldProcess applies the channel filter: direct messages always pass,
// direct-only mode drops every broadcast, and broadcasts must arrive on a
// monitored channel.
func (c *GatewayClient) shouldProcess(channel int, direct bool) bool {
	if direct {
		return true
	}
	if c.cfg.DirectMessageOnly {
		return false
	}
	for _, ch := range c.cfg.MonitoredChannels {
		if ch == channel {
			return true
		}
	}
	return false
}
