package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/edgewatch/edgewatch/internal/model"
	"github.com/edgewatch/edgewatch/internal/pkg/logger"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	ReconnBaseDelay = 500 * time.Millisecond
	ReconnMaxDelay  = 30 * time.Second
	PingPeriod      = 15 * time.Second
)

// Stream maintains a websocket subscription to one venue's quote feed and
// forwards parsed quotes into the shared ingest channel. Reconnection uses
// exponential backoff with jitter.
type Stream struct {
	venue  string
	url    string
	out    chan<- model.Quote
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	conn        *websocket.Conn
	subs        []string
	isConnected bool
}

func NewStream(venue, url string, out chan<- model.Quote) *Stream {
	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{
		venue:  venue,
		url:    url,
		out:    out,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the connection loop in a background goroutine.
func (s *Stream) Start() {
	go s.runLoop()
}

func (s *Stream) Stop() {
	s.cancel()
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()
}

// Subscribe adds market ids to the subscription list and updates the live
// connection if one is up.
func (s *Stream) Subscribe(marketIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := false
	for _, id := range marketIDs {
		found := false
		for _, existing := range s.subs {
			if existing == id {
				found = true
				break
			}
		}
		if !found {
			s.subs = append(s.subs, id)
			added = true
		}
	}

	if added && s.isConnected {
		_ = s.sendSubscribeLocked(marketIDs)
	}
}

func (s *Stream) runLoop() {
	delay := ReconnBaseDelay

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if err := s.connect(); err != nil {
			jittered := delay + time.Duration(rand.Int63n(int64(delay)/2+1))
			logger.Warn("quote stream connect failed",
				"venue", s.venue, "error", err, "retry_in", jittered)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(jittered):
			}
			delay *= 2
			if delay > ReconnMaxDelay {
				delay = ReconnMaxDelay
			}
			continue
		}

		delay = ReconnBaseDelay
		s.mu.Lock()
		s.isConnected = true
		allSubs := append([]string(nil), s.subs...)
		s.mu.Unlock()

		if len(allSubs) > 0 {
			s.mu.Lock()
			err := s.sendSubscribeLocked(allSubs)
			s.mu.Unlock()
			if err != nil {
				logger.Error("resubscribe failed", "venue", s.venue, "error", err)
				s.closeConn()
				continue
			}
		}

		s.readLoop()

		s.mu.Lock()
		s.isConnected = false
		s.mu.Unlock()
	}
}

func (s *Stream) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		return err
	}

	readTimeout := PingPeriod + 10*time.Second
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	go s.pingLoop(conn)
	return nil
}

func (s *Stream) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if !s.isConnected || s.conn != conn {
				s.mu.Unlock()
				return
			}
			err := conn.WriteMessage(websocket.PingMessage, []byte{})
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// wsQuote is the venue's wire format for one two-sided quote update.
type wsQuote struct {
	MarketID  string `json:"market_id"`
	EventID   string `json:"event_id"`
	Entity    string `json:"entity"`
	Bid       string `json:"bid"`
	Ask       string `json:"ask"`
	BidSize   string `json:"bid_size"`
	AskSize   string `json:"ask_size"`
	Timestamp int64  `json:"ts"`
}

func (s *Stream) readLoop() {
	defer s.closeConn()

	readTimeout := PingPeriod + 10*time.Second

	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			logger.Warn("quote stream read error", "venue", s.venue, "error", err)
			return
		}

		var updates []wsQuote
		if err := json.Unmarshal(message, &updates); err != nil {
			var single wsQuote
			if err2 := json.Unmarshal(message, &single); err2 == nil {
				updates = []wsQuote{single}
			} else {
				// Control or keep-alive frame.
				continue
			}
		}

		for _, u := range updates {
			q, err := s.parseQuote(u)
			if err != nil {
				logger.Debug("dropping malformed quote", "venue", s.venue, "error", err)
				continue
			}
			select {
			case s.out <- q:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

func (s *Stream) parseQuote(u wsQuote) (model.Quote, error) {
	if u.MarketID == "" || u.EventID == "" {
		return model.Quote{}, fmt.Errorf("missing market/event id")
	}
	bid, err := decimal.NewFromString(u.Bid)
	if err != nil {
		return model.Quote{}, fmt.Errorf("bad bid %q: %w", u.Bid, err)
	}
	ask, err := decimal.NewFromString(u.Ask)
	if err != nil {
		return model.Quote{}, fmt.Errorf("bad ask %q: %w", u.Ask, err)
	}
	bidSize, err := decimal.NewFromString(u.BidSize)
	if err != nil {
		return model.Quote{}, fmt.Errorf("bad bid size %q: %w", u.BidSize, err)
	}
	askSize, err := decimal.NewFromString(u.AskSize)
	if err != nil {
		return model.Quote{}, fmt.Errorf("bad ask size %q: %w", u.AskSize, err)
	}

	ts := time.Now()
	if u.Timestamp > 0 {
		ts = time.UnixMilli(u.Timestamp)
	}

	return model.Quote{
		Venue:     s.venue,
		MarketID:  u.MarketID,
		EventID:   u.EventID,
		Entity:    u.Entity,
		Bid:       bid,
		Ask:       ask,
		BidSize:   bidSize,
		AskSize:   askSize,
		Timestamp: ts,
	}, nil
}

func (s *Stream) sendSubscribeLocked(marketIDs []string) error {
	if s.conn == nil {
		return fmt.Errorf("no connection")
	}
	msg := map[string]interface{}{
		"type":       "subscribe",
		"market_ids": marketIDs,
		"channel":    "quotes",
	}
	return s.conn.WriteJSON(msg)
}

func (s *Stream) closeConn() {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()
}
