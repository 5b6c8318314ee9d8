package relay

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"privly_chat/internal/model"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// wsTransport is the presence.Transport of one websocket connection. Writes
// are serialized and bounded by writeTimeout; Close may run concurrently
// with a blocked write and makes it fail.
type wsTransport struct {
	id           string
	identity     string
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

func newWSTransport(identity string, conn *websocket.Conn, writeTimeout time.Duration) *wsTransport {
	return &wsTransport{
		id:           uuid.NewString(),
		identity:     identity,
		conn:         conn,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

func (t *wsTransport) ID() string {
	return t.id
}

func (t *wsTransport) Send(frame *model.Frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.sendLocked(frame)
}

func (t *wsTransport) sendLocked(frame *model.Frame) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("relay: encode %s frame: %w", frame.Type, err)
	}

	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return fmt.Errorf("relay: write to %s: %w", t.identity, err)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("relay: write to %s: %w", t.identity, err)
	}
	return nil
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		close(t.done)
		err = t.conn.Close()
	})
	return err
}

// shutdown sends a close frame before closing the connection.
func (t *wsTransport) shutdown(code int, text string) error {
	if !t.closed.Load() {
		msg := websocket.FormatCloseMessage(code, text)
		_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(t.writeTimeout))
	}
	return t.Close()
}

func (t *wsTransport) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout))
			if err != nil {
				t.Close()
				return
			}
		}
	}
}
