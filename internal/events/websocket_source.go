package events

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-registry/internal/live"
	"github.com/ukydev/fleet-registry/internal/models"
)

// ErrUnauthorized is returned when the server rejects the push channel token.
var ErrUnauthorized = errors.New("push channel rejected token")

// WebSocketSource subscribes to the fleetd push channel. It redials with
// exponential backoff after the connection drops, until cancelled.
type WebSocketSource struct {
	URL   string
	Token string

	Dialer     *websocket.Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// OnConnect runs when the server acknowledges a connection.
	OnConnect func()
	// OnDisconnect runs when an established connection drops.
	OnDisconnect func(error)

	now func() time.Time
}

// NewWebSocketSource returns a source for url authenticated with token.
func NewWebSocketSource(url, token string) *WebSocketSource {
	return &WebSocketSource{
		URL:        url,
		Token:      token,
		Dialer:     websocket.DefaultDialer,
		MinBackoff: 500 * time.Millisecond,
		MaxBackoff: 30 * time.Second,
		now:        time.Now,
	}
}

func (s *WebSocketSource) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.Token)
	conn, resp, err := s.Dialer.DialContext(ctx, s.URL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("dial %s: %w", s.URL, err)
	}
	return conn, nil
}

// Subscribe connects and delivers vehicle events to h until the returned
// cancel func is called or ctx ends. The first dial is synchronous so a bad
// URL or token fails fast.
func (s *WebSocketSource) Subscribe(ctx context.Context, h live.Handler) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	conn, err := s.dial(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.loop(ctx, conn, h)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

func (s *WebSocketSource) loop(ctx context.Context, conn *websocket.Conn, h live.Handler) {
	backoff := s.MinBackoff
	for {
		err := s.consume(ctx, conn, h)
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).WithField("url", s.URL).Warn("Push channel disconnected")
		if s.OnDisconnect != nil {
			s.OnDisconnect(err)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			conn, err = s.dial(ctx)
			if err == nil {
				backoff = s.MinBackoff
				break
			}
			log.WithError(err).WithField("retry_in", backoff).Debug("Push channel redial failed")
			backoff *= 2
			if backoff > s.MaxBackoff {
				backoff = s.MaxBackoff
			}
		}
	}
}

// consume reads until the connection fails or ctx ends.
func (s *WebSocketSource) consume(ctx context.Context, conn *websocket.Conn, h live.Handler) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		name, ev, err := DecodeEvent(msg, s.now())
		switch {
		case name == models.EventConnect:
			if s.OnConnect != nil {
				s.OnConnect()
			}
		case errors.Is(err, ErrNotVehicleEvent):
			log.WithField("event", name).Debug("Ignoring push message")
		case err != nil:
			log.WithError(err).Warn("Dropping malformed push message")
		default:
			h(ev)
		}
	}
}

var _ live.Subscriber = (*WebSocketSource)(nil)
