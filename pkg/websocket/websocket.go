package websocketPkg

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"PalmSpeak/pkg/imaging"
	"PalmSpeak/pkg/landmark"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var ErrNotConfigured = errors.New("landmark service URL not configured")

// IWebsocket is a landmark.Extractor backed by the hand-landmark AI service.
type IWebsocket interface {
	landmark.Extractor
	IsConnected() bool
	Reconnect() error
}

type Options struct {
	URL          string
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	JPEGQuality  int
}

func DefaultOptions(url string) Options {
	return Options{
		URL:          url,
		PingInterval: 30 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
		JPEGQuality:  85,
	}
}

type webSocketClient struct {
	opts Options
	log  *logrus.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	// one frame in flight per connection so replies pair with requests
	reqMu sync.Mutex

	closed chan struct{}
	once   sync.Once
}

type landmarkResponse struct {
	Hands []landmark.Hand `json:"hands"`
	Error string          `json:"error,omitempty"`
}

func NewLandmarkClient(opts Options, log *logrus.Logger) IWebsocket {
	client := &webSocketClient{
		opts:   opts,
		log:    log,
		closed: make(chan struct{}),
	}

	go client.connectInBackground()

	return client
}

func (c *webSocketClient) connectInBackground() {
	if _, err := c.ensureConnected(); err != nil {
		c.log.WithFields(logrus.Fields{
			"url":   c.opts.URL,
			"error": err.Error(),
		}).Warn("Initial connection to landmark service failed, will retry on demand")
		return
	}
	c.log.WithField("url", c.opts.URL).Info("Connected to landmark service")
}

func (c *webSocketClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Reconnect drops any current connection and dials again.
func (c *webSocketClient) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	_, err := c.dialLocked()
	return err
}

// ensureConnected returns the live connection, dialing only when there is none.
func (c *webSocketClient) ensureConnected() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn, nil
	}
	return c.dialLocked()
}

func (c *webSocketClient) dialLocked() (*websocket.Conn, error) {
	select {
	case <-c.closed:
		return nil, errors.New("landmark client closed")
	default:
	}

	if c.opts.URL == "" {
		return nil, ErrNotConfigured
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.opts.URL, err)
	}

	conn.SetPingHandler(func(appData string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.opts.WriteTimeout))
		if err != nil {
			c.log.Debugf("Error sending pong to landmark service: %v", err)
		}
		return nil
	})

	c.conn = conn
	go c.keepAlive(conn)

	return conn, nil
}

func (c *webSocketClient) keepAlive(conn *websocket.Conn) {
	if c.opts.PingInterval <= 0 {
		return
	}

	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.conn != conn {
			c.mu.Unlock()
			return
		}

		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
			c.log.Warnf("Ping to landmark service failed, marking connection as dead: %v", err)
			c.conn = nil
			conn.Close()
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
	}
}

func (c *webSocketClient) getConnection() (*websocket.Conn, error) {
	conn, err := c.ensureConnected()
	if err != nil {
		return nil, fmt.Errorf("cannot connect to landmark service: %w", err)
	}
	return conn, nil
}

func (c *webSocketClient) dropConnection(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
	conn.Close()
}

func (c *webSocketClient) Extract(ctx context.Context, frame *imaging.Frame) (landmark.Hand, bool, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := ctx.Err(); err != nil {
		return landmark.Hand{}, false, err
	}

	conn, err := c.getConnection()
	if err != nil {
		return landmark.Hand{}, false, err
	}

	jpegData, err := imaging.EncodeJPEG(frame, c.opts.JPEGQuality)
	if err != nil {
		return landmark.Hand{}, false, fmt.Errorf("encode frame: %w", err)
	}
	payload := base64.StdEncoding.EncodeToString(jpegData)

	writeDeadline := time.Now().Add(c.opts.WriteTimeout)
	readDeadline := time.Now().Add(c.opts.ReadTimeout)
	if deadline, ok := ctx.Deadline(); ok {
		if deadline.Before(writeDeadline) {
			writeDeadline = deadline
		}
		if deadline.Before(readDeadline) {
			readDeadline = deadline
		}
	}

	conn.SetWriteDeadline(writeDeadline)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		c.dropConnection(conn)
		return landmark.Hand{}, false, fmt.Errorf("error sending frame: %w", err)
	}

	conn.SetReadDeadline(readDeadline)
	_, message, err := conn.ReadMessage()
	if err != nil {
		c.dropConnection(conn)
		return landmark.Hand{}, false, fmt.Errorf("error reading landmark message: %w", err)
	}
	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})

	var result landmarkResponse
	if err := json.Unmarshal(message, &result); err != nil {
		return landmark.Hand{}, false, fmt.Errorf("error unmarshaling landmark response: %w", err)
	}
	if result.Error != "" {
		return landmark.Hand{}, false, fmt.Errorf("landmark service: %s", result.Error)
	}
	if len(result.Hands) == 0 {
		return landmark.Hand{}, false, nil
	}

	c.log.WithFields(logrus.Fields{
		"hands":      len(result.Hands),
		"handedness": result.Hands[0].Handedness,
		"score":      result.Hands[0].Score,
	}).Debug("Received landmarks")

	return result.Hands[0], true, nil
}

func (c *webSocketClient) Close() error {
	c.once.Do(func() {
		close(c.closed)
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.opts.WriteTimeout))
	err := c.conn.Close()
	c.conn = nil
	return err
}
