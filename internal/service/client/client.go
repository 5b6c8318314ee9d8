package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"privly_chat/internal/cryptographic/box"
	"privly_chat/internal/cryptographic/dh"
	"privly_chat/internal/model"
	"privly_chat/internal/service/conversation"
	"privly_chat/internal/utils/log"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("client: not connected to relay")

type EventKind int

const (
	EventInfo EventKind = iota
	EventMessage
	EventError
	EventDisconnected
)

// Event is what the relay connection reports to the user interface.
type Event struct {
	Kind    EventKind
	Peer    string
	Entry   *model.ConversationEntry
	Message string
}

// KeyStore persists the local key pair. KeyPair returns nil, nil when none
// has been generated yet.
type KeyStore interface {
	KeyPair() (*model.KeyPair, error)
	PutKeyPair(*model.KeyPair) error
}

type Store interface {
	KeyStore
	conversation.Store
	conversation.CounterStore
}

type Client struct {
	identity     string
	api          *API
	writeTimeout time.Duration

	keys   *model.KeyPair
	log    *conversation.Log
	unread *conversation.Unread

	writeMu sync.Mutex
	conn    *websocket.Conn

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(identity string, api *API, store Store, keys *model.KeyPair) *Client {
	return &Client{
		identity:     identity,
		api:          api,
		writeTimeout: 10 * time.Second,
		keys:         keys,
		log:          conversation.NewLog(store),
		unread:       conversation.NewUnread(store),
		events:       make(chan Event, 64),
		done:         make(chan struct{}),
	}
}

// LoadOrCreateKeys returns the persisted key pair, generating and storing a
// fresh one on first use.
func LoadOrCreateKeys(store KeyStore) (*model.KeyPair, error) {
	keys, err := store.KeyPair()
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	if keys != nil {
		if err := box.CheckKeyPair(keys); err != nil {
			return nil, err
		}
		return keys, nil
	}

	keys, err = box.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := store.PutKeyPair(keys); err != nil {
		return nil, fmt.Errorf("store key pair: %w", err)
	}
	log.Info("generated key pair", zap.String("fingerprint", dh.Fingerprint(keys.PublicKey[:])))
	return keys, nil
}

func (c *Client) Identity() string {
	return c.identity
}

func (c *Client) Fingerprint() string {
	return dh.Fingerprint(c.keys.PublicKey[:])
}

func (c *Client) Events() <-chan Event {
	return c.events
}

// Start announces the public key to the directory and opens the relay
// connection. The key is re-registered on every start.
func (c *Client) Start(ctx context.Context) error {
	if err := c.api.RegisterKey(ctx, c.identity, c.keys.PublicKey[:]); err != nil {
		return fmt.Errorf("register key: %w", err)
	}

	conn, err := c.api.Dial(ctx, c.identity)
	if err != nil {
		return fmt.Errorf("connect relay: %w", err)
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	c.wg.Add(1)
	go c.listen(conn)

	log.Info("client started",
		zap.String("identity", c.identity),
		zap.String("fingerprint", c.Fingerprint()))
	return nil
}

// Send encrypts text for peer under the peer's current directory key and
// hands it to the relay. The returned entry has already been logged.
func (c *Client) Send(ctx context.Context, peer, text string) (*model.ConversationEntry, error) {
	if err := model.ValidateIdentity(peer); err != nil {
		return nil, err
	}

	peerKey, err := c.api.FetchPublicKey(ctx, peer)
	if err != nil {
		return nil, err
	}

	env, err := box.Seal(c.identity, peer, []byte(text), peerKey, c.keys)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}

	if err := c.write(model.SendFrame(peer, raw)); err != nil {
		return nil, err
	}

	entry := &model.ConversationEntry{
		Sender:    c.identity,
		Text:      text,
		Direction: model.DirectionSent,
		Timestamp: time.Now(),
	}
	_ = c.log.Append(conversation.Key(c.identity, peer), entry)
	return entry, nil
}

func (c *Client) write(frame *model.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// Activate switches the active conversation to peer, clears its unread
// counter and returns its history.
func (c *Client) Activate(peer string) ([]*model.ConversationEntry, error) {
	c.unread.Activate(peer)
	return c.History(peer)
}

func (c *Client) History(peer string) ([]*model.ConversationEntry, error) {
	return c.log.Load(conversation.Key(c.identity, peer))
}

func (c *Client) Unread() map[string]int {
	return c.unread.Counts()
}

func (c *Client) listen(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Debug("relay connection closed", zap.Error(err))
			c.detach(conn)
			c.emit(Event{Kind: EventDisconnected, Message: err.Error()})
			return
		}

		var frame model.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Warn("unmarshal relay frame failed", zap.Error(err))
			continue
		}

		switch frame.Type {
		case model.FrameInfo:
			c.emit(Event{Kind: EventInfo, Message: frame.Message})
		case model.FrameError:
			c.emit(Event{Kind: EventError, Message: frame.Message})
		case model.FrameDeliver:
			c.receive(&frame)
		default:
			log.Debug("ignore relay frame", zap.String("type", string(frame.Type)))
		}
	}
}

func (c *Client) detach(conn *websocket.Conn) {
	c.writeMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.writeMu.Unlock()
	conn.Close()
}

// receive decrypts a delivered envelope. The sender is the identity the relay
// attests, never the one claimed inside the envelope.
func (c *Client) receive(frame *model.Frame) {
	sender := frame.Sender
	if model.ValidateIdentity(sender) != nil {
		log.Warn("drop deliver frame without sender")
		return
	}

	text, err := c.open(sender, frame.Envelope)

	entry := &model.ConversationEntry{
		Sender:    sender,
		Text:      text,
		Direction: model.DirectionReceived,
		Timestamp: time.Now(),
	}
	if err != nil {
		log.Warn("message rejected",
			zap.String("event", "security"),
			zap.String("sender", sender),
			zap.Error(err))
		entry.Text = model.UndecryptableMarker
		entry.Direction = model.DirectionReceiveError
	}

	_ = c.log.Append(conversation.Key(c.identity, sender), entry)
	c.unread.Received(sender)
	c.emit(Event{Kind: EventMessage, Peer: sender, Entry: entry})
}

func (c *Client) open(sender string, raw json.RawMessage) (string, error) {
	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("%w: malformed envelope", box.ErrAuthenticationFailed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.api.http.Timeout)
	defer cancel()

	senderKey, err := c.api.FetchPublicKey(ctx, sender)
	if err != nil {
		return "", err
	}

	plaintext, err := box.Open(&env, senderKey, c.keys)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Close sends a close frame to the relay and waits for the reader to stop.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		conn := c.conn
		c.writeMu.Unlock()

		if conn != nil {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			err = conn.Close()
		}
		c.wg.Wait()
	})
	return err
}
