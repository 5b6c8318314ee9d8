// Package relay accepts websocket connections, binds each one to its
// identity and forwards opaque envelopes between bound identities.
//
// The relay never decodes envelopes and holds no key material. A message for
// an identity that is not bound is dropped and the sender gets an error
// frame.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"privly_chat/internal/model"
	"privly_chat/internal/platform/ratelimiter"
	"privly_chat/internal/service/presence"
	"privly_chat/internal/utils/log"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	ErrNoIdentity       = errors.New("relay: connection carries no identity")
	ErrRecipientOffline = errors.New("relay: recipient offline")
	ErrMalformedFrame   = errors.New("relay: malformed frame")
	ErrTransportClosed  = errors.New("relay: transport closed")
)

const connectedMessage = "connected to relay"

type Config struct {
	IdentityParam string
	WriteTimeout  time.Duration
	PingInterval  time.Duration
	PongWait      time.Duration
	MaxFrameBytes int64
	SendRate      float64
	SendBurst     int
}

func DefaultConfig() Config {
	return Config{
		IdentityParam: "userId",
		WriteTimeout:  10 * time.Second,
		PingInterval:  30 * time.Second,
		PongWait:      60 * time.Second,
		MaxFrameBytes: 256 << 10,
		SendRate:      20,
		SendBurst:     40,
	}
}

type Relay struct {
	cfg      Config
	presence *presence.Registry
	limiter  *ratelimiter.KeyLimiter
	metrics  *Metrics
	upgrader websocket.Upgrader

	wg sync.WaitGroup
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.IdentityParam == "" {
		c.IdentityParam = def.IdentityParam
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = def.PongWait
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = def.MaxFrameBytes
	}
	return c
}

// New builds a relay over registry. SendRate or SendBurst <= 0 disables rate
// limiting.
func New(cfg Config, registry *presence.Registry, metrics *Metrics) *Relay {
	cfg = cfg.withDefaults()
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Relay{
		cfg:      cfg,
		presence: registry,
		limiter:  ratelimiter.New(cfg.SendRate, cfg.SendBurst, 0),
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
	}
}

func (s *Relay) Registry() *presence.Registry {
	return s.presence
}

func (s *Relay) HandleWS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.Accept(w, r); err != nil {
			log.Debug("relay connection refused", zap.Error(err))
		}
	}
}

// Accept upgrades the request, binds the connection under the identity found
// in the query string and starts its worker. A request without a usable
// identity is refused before the upgrade.
func (s *Relay) Accept(w http.ResponseWriter, r *http.Request) (string, error) {
	identity := r.URL.Query().Get(s.cfg.IdentityParam)
	if err := model.ValidateIdentity(identity); err != nil {
		s.metrics.rejected.Inc()
		http.Error(w, fmt.Sprintf("%s is missing or invalid", s.cfg.IdentityParam), http.StatusBadRequest)
		return "", ErrNoIdentity
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return "", fmt.Errorf("relay: upgrade: %w", err)
	}

	t := newWSTransport(identity, conn, s.cfg.WriteTimeout)

	// Hold the write lock across Bind so the info frame is the first thing
	// the client reads even if a sender routes to it right away.
	t.writeMu.Lock()
	if prev := s.presence.Bind(identity, t); prev != nil {
		s.metrics.evictions.Inc()
	}
	infoErr := t.sendLocked(model.InfoFrame(connectedMessage))
	t.writeMu.Unlock()

	s.metrics.accepted.Inc()
	s.metrics.connections.Inc()
	log.Info("transport bound",
		zap.String("identity", identity),
		zap.String("conn", t.ID()),
		zap.String("remote", r.RemoteAddr))

	if infoErr != nil {
		log.Debug("send info frame failed", zap.String("identity", identity), zap.Error(infoErr))
		t.Close()
	}

	s.wg.Add(1)
	go s.serve(identity, t)
	return identity, nil
}

func (s *Relay) serve(identity string, t *wsTransport) {
	defer s.wg.Done()
	defer s.release(identity, t)

	conn := t.conn
	conn.SetReadLimit(s.cfg.MaxFrameBytes)
	conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	go t.keepalive(s.cfg.PingInterval)

	connLog := log.With(zap.String("identity", identity), zap.String("conn", t.ID()))
	connLog.Debug("relay worker started")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			connLog.Debug("relay web socket closed", zap.Error(err))
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))

		s.handleFrame(identity, t, data)
	}
}

// release drops the binding of a finished connection unless a newer
// connection has already replaced it.
func (s *Relay) release(identity string, t *wsTransport) {
	if s.presence.UnbindIfCurrent(identity, t) {
		s.limiter.Forget(identity)
		log.Info("transport unbound", zap.String("identity", identity), zap.String("conn", t.ID()))
	}
	t.Close()
	s.metrics.connections.Dec()
}

func (s *Relay) handleFrame(identity string, t presence.Transport, data []byte) {
	frame, err := parseSendFrame(data)
	if err != nil {
		s.metrics.frames.WithLabelValues(outcomeMalformed).Inc()
		log.Warn("malformed frame", zap.String("identity", identity), zap.Error(err))
		s.reply(identity, t, model.ErrorFrame("malformed message frame"))
		return
	}

	if !s.limiter.Allow(identity, time.Now()) {
		s.metrics.frames.WithLabelValues(outcomeRateLimited).Inc()
		s.reply(identity, t, model.ErrorFrame("rate limit exceeded"))
		return
	}

	if err := s.Route(identity, frame.Recipient, frame.Envelope); err != nil {
		s.reply(identity, t, model.ErrorFrame(fmt.Sprintf("recipient %s is offline", frame.Recipient)))
	}
}

func (s *Relay) reply(identity string, t presence.Transport, frame *model.Frame) {
	if err := t.Send(frame); err != nil {
		log.Debug("reply to sender failed", zap.String("identity", identity), zap.Error(err))
	}
}

// Route forwards envelope to the transport bound to recipient. It returns
// nil once the frame has been written, or ErrRecipientOffline when the
// recipient is not bound or its transport fails during the write. A failed
// transport is unbound and closed, and a binding that replaced it in the
// meantime gets one more try.
func (s *Relay) Route(sender, recipient string, envelope json.RawMessage) error {
	frame := model.DeliverFrame(sender, envelope)

	var (
		failedID string
		sendErr  error
	)
	for attempt := 0; attempt < 2; attempt++ {
		t, ok := s.presence.Lookup(recipient)
		if !ok || t.ID() == failedID {
			break
		}

		if sendErr = t.Send(frame); sendErr == nil {
			s.metrics.frames.WithLabelValues(outcomeDelivered).Inc()
			return nil
		}

		log.Warn("deliver failed",
			zap.String("sender", sender),
			zap.String("recipient", recipient),
			zap.String("conn", t.ID()),
			zap.Error(sendErr))
		s.presence.UnbindIfCurrent(recipient, t)
		t.Close()
		failedID = t.ID()
	}

	s.metrics.frames.WithLabelValues(outcomeOffline).Inc()
	if sendErr != nil {
		return fmt.Errorf("%w: %v", ErrRecipientOffline, sendErr)
	}
	log.Debug("recipient offline", zap.String("sender", sender), zap.String("recipient", recipient))
	return ErrRecipientOffline
}

func parseSendFrame(data []byte) (*model.Frame, error) {
	var frame model.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if frame.Type != model.FrameSend {
		return nil, fmt.Errorf("%w: unexpected type %q", ErrMalformedFrame, frame.Type)
	}
	if err := model.ValidateIdentity(frame.Recipient); err != nil {
		return nil, fmt.Errorf("%w: bad recipient", ErrMalformedFrame)
	}
	env := bytes.TrimSpace(frame.Envelope)
	if len(env) == 0 || env[0] != '{' {
		return nil, fmt.Errorf("%w: envelope must be an object", ErrMalformedFrame)
	}
	frame.Envelope = env
	return &frame, nil
}

// Shutdown closes every bound connection with a normal-closure frame and
// waits for the connection workers to exit or ctx to end.
func (s *Relay) Shutdown(ctx context.Context) error {
	var err error
	for _, identity := range s.presence.Identities() {
		t, ok := s.presence.Lookup(identity)
		if !ok {
			continue
		}
		if ws, ok := t.(*wsTransport); ok {
			err = multierr.Append(err, ws.shutdown(websocket.CloseNormalClosure, "server is shutting down"))
		}
	}
	err = multierr.Append(err, s.presence.CloseAll())

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		err = multierr.Append(err, ctx.Err())
	}
	return err
}
