package speech

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	speechmodel "github.com/zhouzirui/debate-arena/backend/internal/model/speech"
)

// UpstreamConn is the part of a WebSocket connection the bridge needs.
// *websocket.Conn satisfies it.
type UpstreamConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens an upstream transcription connection for a mode.
type Dialer interface {
	Dial(ctx context.Context, mode speechmodel.Mode) (UpstreamConn, error)
}

// DialerOptions 上游连接选项
type DialerOptions struct {
	HandshakeTimeout time.Duration // 握手超时时间
	ReadLimit        int64         // 单条上游消息的最大字节数
}

// DefaultDialerOptions 默认上游连接选项
func DefaultDialerOptions() DialerOptions {
	return DialerOptions{
		HandshakeTimeout: 10 * time.Second,
		ReadLimit:        1 << 20,
	}
}

// WebSocketDialer dials the transcription service with gorilla/websocket.
type WebSocketDialer struct {
	cfg     speechmodel.SpeechConfig
	options DialerOptions
	dialer  *websocket.Dialer
}

// NewWebSocketDialer creates a dialer for the configured upstream.
func NewWebSocketDialer(cfg speechmodel.SpeechConfig, options DialerOptions) *WebSocketDialer {
	if options.HandshakeTimeout <= 0 {
		options.HandshakeTimeout = DefaultDialerOptions().HandshakeTimeout
	}
	return &WebSocketDialer{
		cfg:     cfg,
		options: options,
		dialer: &websocket.Dialer{
			HandshakeTimeout: options.HandshakeTimeout,
		},
	}
}

// Endpoint resolves the upstream URL of a mode.
func (d *WebSocketDialer) Endpoint(mode speechmodel.Mode) (string, error) {
	base, err := url.Parse(strings.TrimSpace(d.cfg.UpstreamURL))
	if err != nil {
		return "", fmt.Errorf("invalid upstream url %q: %w", d.cfg.UpstreamURL, err)
	}
	switch base.Scheme {
	case "ws", "wss":
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported upstream scheme %q", base.Scheme)
	}

	route := d.cfg.Route(mode)
	if route == "" {
		return "", fmt.Errorf("no upstream route for mode %s", mode)
	}
	base.Path = path.Join("/", base.Path, route)
	return base.String(), nil
}

// Dial 建立单次上游连接，不做重试
func (d *WebSocketDialer) Dial(ctx context.Context, mode speechmodel.Mode) (UpstreamConn, error) {
	endpoint, err := d.Endpoint(mode)
	if err != nil {
		return nil, err
	}

	conn, resp, err := d.dialer.DialContext(ctx, endpoint, upstreamHeader(d.cfg, uuid.NewString()))
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial %s: %s: %v", ErrUpstream, endpoint, resp.Status, err)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUpstream, endpoint, err)
	}

	if d.options.ReadLimit > 0 {
		conn.SetReadLimit(d.options.ReadLimit)
	}
	return conn, nil
}
