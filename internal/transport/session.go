// Package transport owns the single duplex binary channel to the server,
// generalizing client/transport.go's WebTransport session into a websocket
// one: URL composition, the text-frame handshake, gzip framing, and a
// heartbeat loop, per spec §4.1.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// heartbeatInterval is how often a ping frame is emitted, per spec §4.1.
const heartbeatInterval = 25 * time.Second

const dialTimeout = 10 * time.Second

// Options configures the query parameters a Connect call composes onto the
// base URL, per spec §6's "WebSocket URL" grammar.
type Options struct {
	Token        string
	SendID       string
	PlatformID   int32
	Compression  string
	IsBackground bool
	IsMsgResp    bool
	SDKType      string
}

// Session manages the websocket connection to the server. Callbacks must be
// registered via the SetOn* methods before Connect is called, matching the
// teacher's Transport wiring convention.
type Session struct {
	writeMu sync.Mutex
	conn    *websocket.Conn

	mu               sync.Mutex
	cancel           context.CancelFunc
	disconnectReason string

	token  string
	sendID string

	cbMu           sync.RWMutex
	onPush         func(InFrame)
	onSendAck      func(InFrame)
	onKickOffline  func()
	onDisconnected func(reason string)
}

// New constructs an unconnected Session.
func New() *Session {
	return &Session{}
}

func (s *Session) SetOnPush(fn func(InFrame)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onPush = fn
}

func (s *Session) SetOnSendAck(fn func(InFrame)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onSendAck = fn
}

func (s *Session) SetOnKickOffline(fn func()) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onKickOffline = fn
}

func (s *Session) SetOnDisconnected(fn func(reason string)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onDisconnected = fn
}

// buildURL composes the websocket URL per spec §6: base + query params
// {token, sendID, platformID, operationID, compression, isBackground,
// isMsgResp, sdkType}. An empty compression value omits the parameter.
func buildURL(base string, opt Options) string {
	u, err := url.Parse(base)
	if err != nil {
		// base is configuration, not user input; fail loudly at Connect
		// instead of silently dropping query params.
		u = &url.URL{}
	}
	q := u.Query()
	q.Set("token", opt.Token)
	q.Set("sendID", opt.SendID)
	q.Set("platformID", strconv.Itoa(int(opt.PlatformID)))
	q.Set("operationID", strconv.FormatInt(time.Now().UnixMilli(), 10))
	if opt.Compression != "" {
		q.Set("compression", opt.Compression)
	}
	q.Set("isBackground", strconv.FormatBool(opt.IsBackground))
	q.Set("isMsgResp", strconv.FormatBool(opt.IsMsgResp))
	q.Set("sdkType", opt.SDKType)
	u.RawQuery = q.Encode()
	return u.String()
}

// handshakeEnvelope is the shape of the first server frame, per spec §4.1.
type handshakeEnvelope struct {
	ErrCode int32  `json:"errCode"`
	ErrMsg  string `json:"errMsg"`
}

// Connect dials the websocket, performs the handshake, and — once
// authenticated — starts the reader and heartbeat goroutines. It returns
// once the handshake completes or fails; absent-frame and transport errors
// during the handshake are both treated as fatal, per spec §4.1.
func (s *Session) Connect(ctx context.Context, base string, opt Options) error {
	s.mu.Lock()
	s.disconnectReason = ""
	s.token = opt.Token
	s.sendID = opt.SendID
	s.mu.Unlock()

	dialCtx, dialCancel := context.WithTimeout(ctx, dialTimeout)
	defer dialCancel()

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(dialCtx, buildURL(base, opt), nil)
	if err != nil {
		return fmt.Errorf("transport: dial: %w", err)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return fmt.Errorf("transport: handshake read: %w", err)
	}
	var hs handshakeEnvelope
	if err := json.Unmarshal(raw, &hs); err != nil {
		conn.Close()
		return fmt.Errorf("transport: handshake decode: %w", err)
	}
	if hs.ErrCode != 0 {
		conn.Close()
		return fmt.Errorf("transport: handshake rejected: errCode=%d errMsg=%s", hs.ErrCode, hs.ErrMsg)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.conn = conn
	s.cancel = cancel
	s.mu.Unlock()

	go s.readLoop(sessCtx, conn)
	go s.heartbeatLoop(sessCtx)

	return nil
}

// Disconnect closes the underlying connection and stops the background
// goroutines. Safe to call more than once.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	cancel := s.cancel
	s.conn = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
}

// Send marshals frame to JSON, gzip-compresses it, and writes it as a
// binary message, per spec §4.1's outbound framing.
func (s *Session) Send(frame OutFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("transport: marshal frame: %w", err)
	}
	compressed, err := gzipCompress(payload)
	if err != nil {
		return fmt.Errorf("transport: compress frame: %w", err)
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("transport: not connected")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.BinaryMessage, compressed)
}

func (s *Session) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			conn := s.conn
			var err error
			if conn != nil {
				err = conn.WriteMessage(websocket.PingMessage, nil)
			} else {
				err = fmt.Errorf("transport: not connected")
			}
			s.writeMu.Unlock()
			if err != nil {
				log.Printf("[transport] heartbeat write failed, stopping: %v", err)
				return
			}
		}
	}
}

// readLoop reads frames until the connection ends, decompressing binary
// frames per spec §4.1 and dispatching on reqIdentifier. Text frames other
// than the handshake are treated as diagnostic and discarded.
func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		s.cbMu.RLock()
		onDisconnected := s.onDisconnected
		s.cbMu.RUnlock()
		s.mu.Lock()
		reason := s.disconnectReason
		s.mu.Unlock()
		if onDisconnected != nil {
			onDisconnected(reason)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			if s.disconnectReason == "" {
				s.disconnectReason = err.Error()
			}
			s.mu.Unlock()
			return
		}
		if msgType == websocket.TextMessage {
			continue
		}

		decompressed, err := maybeDecompress(raw)
		if err != nil {
			log.Printf("[transport] decompress failed, dropping frame: %v", err)
			continue
		}

		var in InFrame
		if err := json.Unmarshal(decompressed, &in); err != nil {
			log.Printf("[transport] invalid frame json, dropping: %v", err)
			continue
		}

		s.cbMu.RLock()
		onPush := s.onPush
		onSendAck := s.onSendAck
		onKickOffline := s.onKickOffline
		s.cbMu.RUnlock()

		switch in.ReqIdentifier {
		case ReqPush:
			if onPush != nil {
				onPush(in)
			}
		case ReqSend, ReqSendNotOSS:
			if onSendAck != nil {
				onSendAck(in)
			}
		case ReqKickOffline:
			if onKickOffline != nil {
				onKickOffline()
			}
			return
		default:
			log.Printf("[transport] unrecognized reqIdentifier %d, discarding", in.ReqIdentifier)
		}
	}
}
