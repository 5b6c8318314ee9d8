package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"privly_chat/internal/model"
	"privly_chat/internal/service/directory"
	"privly_chat/internal/service/relay"
	"privly_chat/internal/utils/log"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxRegisterBody = 4 << 10

type (
	HttpServer struct {
		addr            string
		shutdownTimeout time.Duration

		directory *directory.Directory
		relay     *relay.Relay
		gatherer  prometheus.Gatherer
	}
)

func NewHttpServer(addr string, shutdownTimeout time.Duration, dir *directory.Directory, rl *relay.Relay, gatherer prometheus.Gatherer) *HttpServer {
	return &HttpServer{
		addr:            addr,
		shutdownTimeout: shutdownTimeout,
		directory:       dir,
		relay:           rl,
		gatherer:        gatherer,
	}
}

func (s *HttpServer) Router() *mux.Router {
	// Identities may contain '/' and dots, so match on the escaped path and
	// unescape the variable in the handler.
	r := mux.NewRouter().UseEncodedPath()

	r.HandleFunc("/init", s.relay.HandleWS()).Methods(http.MethodGet)
	r.HandleFunc("/keys/register_box_key", s.RegisterBoxKey()).Methods(http.MethodPost)
	r.HandleFunc("/keys/box_key/{userId}", s.GetBoxKey()).Methods(http.MethodGet)
	r.HandleFunc("/health", s.Health()).Methods(http.MethodGet)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

// Run serves until ctx is cancelled, then closes every relay connection and
// drains the HTTP server.
func (s *HttpServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", s.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("http server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		// Hijacked websocket connections are not tracked by http.Server.
		err := s.relay.Shutdown(shutdownCtx)
		return multierr.Append(err, srv.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

func (s *HttpServer) RegisterBoxKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req model.RegisterKeyRequest
		err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRegisterBody)).Decode(&req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if req.Identity == "" || req.PublicKey == "" {
			writeError(w, http.StatusBadRequest, "userId and publicKey are required")
			return
		}

		publicKey, err := base64.StdEncoding.DecodeString(req.PublicKey)
		if err != nil {
			writeError(w, http.StatusBadRequest, "publicKey is not valid base64")
			return
		}

		err = s.directory.Register(ctx, req.Identity, publicKey)
		switch {
		case errors.Is(err, directory.ErrInvalidKey), errors.Is(err, directory.ErrInvalidIdentity):
			log.Info("register box key rejected", zap.String("identity", req.Identity), zap.Error(err))
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			log.Error("register box key failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "register box key failed")
			return
		}

		writeJSON(w, http.StatusCreated, &model.MessageResponse{
			Message: fmt.Sprintf("public key of %s registered", req.Identity),
		})
	}
}

func (s *HttpServer) GetBoxKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		vars := mux.Vars(r)
		identity, err := url.PathUnescape(vars["userId"])
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid userId")
			return
		}

		publicKey, err := s.directory.Lookup(ctx, identity)
		switch {
		case errors.Is(err, directory.ErrNotFound):
			writeError(w, http.StatusNotFound, fmt.Sprintf("public key of %s not found", identity))
			return
		case errors.Is(err, directory.ErrInvalidIdentity):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			log.Error("get box key failed", zap.String("identity", identity), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get box key failed")
			return
		}

		writeJSON(w, http.StatusOK, &model.KeyResponse{
			Identity:  identity,
			PublicKey: base64.StdEncoding.EncodeToString(publicKey),
		})
	}
}

func (s *HttpServer) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("encode response failed", zap.Error(err))
		http.Error(w, "encode response failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, &model.ErrorResponse{Error: msg})
}
