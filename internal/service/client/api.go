package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"privly_chat/internal/model"

	"github.com/gorilla/websocket"
)

var (
	ErrPeerNotFound = errors.New("client: peer has no registered key")
	ErrServer       = errors.New("client: server error")
)

// API talks to the directory endpoints and opens the relay connection.
type API struct {
	host          string
	identityParam string
	http          *http.Client
	dialer        *websocket.Dialer
}

type APIOption func(*API)

// WithIdentityParam sets the query parameter that carries the identity on
// the relay handshake. It must match the server's Relay.IdentityParam.
func WithIdentityParam(name string) APIOption {
	return func(a *API) {
		if name != "" {
			a.identityParam = name
		}
	}
}

// NewAPI expects host as "host:port" without a scheme.
func NewAPI(host string, timeout time.Duration, opts ...APIOption) *API {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	a := &API{
		host:          host,
		identityParam: "userId",
		http:          &http.Client{Timeout: timeout},
		dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *API) RegisterKey(ctx context.Context, identity string, publicKey []byte) error {
	u := url.URL{
		Scheme: "http",
		Host:   a.host,
		Path:   "/keys/register_box_key",
	}

	body, err := json.Marshal(&model.RegisterKeyRequest{
		Identity:  identity,
		PublicKey: base64.StdEncoding.EncodeToString(publicKey),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: register key: %d %s", ErrServer, resp.StatusCode, errorMessage(resp.Body))
	}
	return nil
}

// FetchPublicKey returns the key currently registered for identity.
func (a *API) FetchPublicKey(ctx context.Context, identity string) ([]byte, error) {
	u := url.URL{
		Scheme:  "http",
		Host:    a.host,
		Path:    "/keys/box_key/" + identity,
		RawPath: "/keys/box_key/" + escapeSegment(identity),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrPeerNotFound, identity)
	default:
		return nil, fmt.Errorf("%w: fetch key of %s: %d %s", ErrServer, identity, resp.StatusCode, errorMessage(resp.Body))
	}

	var kr model.KeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&kr); err != nil {
		return nil, err
	}

	key, err := base64.StdEncoding.DecodeString(kr.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: key of %s is not base64", ErrServer, identity)
	}
	return key, nil
}

func (a *API) Dial(ctx context.Context, identity string) (*websocket.Conn, error) {
	params := url.Values{
		a.identityParam: []string{identity},
	}

	u := url.URL{
		Scheme:   "ws",
		Host:     a.host,
		Path:     "/init",
		RawQuery: params.Encode(),
	}

	conn, _, err := a.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	return conn, nil
}

// escapeSegment escapes identity as a single path segment. Dot segments are
// percent-encoded too, otherwise routers clean them out of the path.
func escapeSegment(identity string) string {
	if identity == "." || identity == ".." {
		return strings.ReplaceAll(identity, ".", "%2E")
	}
	return url.PathEscape(identity)
}

func errorMessage(r io.Reader) string {
	var er model.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(r, 4<<10)).Decode(&er); err != nil {
		return ""
	}
	return er.Error
}
