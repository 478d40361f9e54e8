package ledger

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dexbot/goladder/internal/events"
)

// Stream 维护到节点的单一 WebSocket 订阅，把新块/市场/账户三类推送
// 按到达顺序交给 Dispatcher。
type Stream struct {
	url        string
	dispatcher *events.Dispatcher
	log        *logrus.Entry

	connMu sync.Mutex
	conn   *websocket.Conn

	running   bool
	runningMu sync.Mutex
}

type StreamConfig struct {
	URL string `yaml:"url"`
}

func NewStream(cfg StreamConfig, d *events.Dispatcher) *Stream {
	return &Stream{
		url:        cfg.URL,
		dispatcher: d,
		log:        logrus.WithField("component", "stream"),
	}
}

type wireEvent struct {
	Type    string `json:"type"` // "block" | "market" | "account"
	Height  uint64 `json:"height,omitempty"`
	Market  string `json:"market,omitempty"`
	Account string `json:"account,omitempty"`
}

// Start 建立连接并启动读取循环；断线后指数退避重连。
func (s *Stream) Start(ctx context.Context) error {
	s.runningMu.Lock()
	if s.running {
		s.runningMu.Unlock()
		return nil
	}
	s.running = true
	s.runningMu.Unlock()

	if err := s.connect(ctx); err != nil {
		return err
	}
	go s.readLoop(ctx)
	return nil
}

func (s *Stream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return wrap(KindNodeLag, "stream_connect", err)
	}
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	s.log.Infof("subscribed to %s", s.url)
	return nil
}

func (s *Stream) readLoop(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			s.Close()
			return
		}
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn == nil {
			if err := s.connect(ctx); err != nil {
				s.log.Warnf("reconnect failed: %v (retrying in %v)", err, backoff)
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				}
				if backoff < 30*time.Second {
					backoff *= 2
				}
				continue
			}
			backoff = time.Second
			continue
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.log.Warnf("read error: %v", err)
			s.connMu.Lock()
			_ = conn.Close()
			s.conn = nil
			s.connMu.Unlock()
			continue
		}
		var we wireEvent
		if err := json.Unmarshal(raw, &we); err != nil {
			s.log.Debugf("skipping malformed event: %v", err)
			continue
		}
		ev := events.Event{Timestamp: time.Now()}
		switch we.Type {
		case "block":
			ev.Kind = events.KindBlock
			ev.Height = we.Height
		case "market":
			ev.Kind = events.KindMarket
			ev.Market = we.Market
		case "account":
			ev.Kind = events.KindAccount
			ev.Account = we.Account
		default:
			continue
		}
		s.dispatcher.Dispatch(ev)
	}
}

// Close 关闭连接（幂等）
func (s *Stream) Close() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}
