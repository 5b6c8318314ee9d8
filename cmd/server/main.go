package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"privly_chat/internal/config"
	keyRepo "privly_chat/internal/repository/key"
	"privly_chat/internal/service/directory"
	"privly_chat/internal/service/presence"
	redisSvc "privly_chat/internal/service/redis"
	"privly_chat/internal/service/relay"
	"privly_chat/internal/service/server"
	"privly_chat/internal/utils/log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func newRootCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Key directory and message relay",
		Long: `Runs the public key directory and the websocket relay.

The relay forwards sealed envelopes between connected identities and never
sees plaintext. Keys are kept in memory, MongoDB or Redis depending on
Directory.Backend.`,
		Example: `  # Start with defaults (memory directory on localhost:9090)
  server

  # Start with a configuration file
  server --config /etc/privly/server.toml`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), configFile)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "f", "",
		"path to the server configuration file (TOML format)")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runServer(ctx context.Context, configFile string) error {
	cfg, err := config.LoadServerFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config file '%v': %w", configFile, err)
	}

	if err := log.Init(cfg.Logging.Level, cfg.Logging.Development); err != nil {
		return err
	}
	defer log.Sync()

	store, closeStore, err := initDirectoryStore(ctx, &cfg.Directory)
	if err != nil {
		return fmt.Errorf("init %s directory: %w", cfg.Directory.Backend, err)
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rl := relay.New(cfg.Relay.RelayConfig(), presence.NewRegistry(), relay.NewMetrics(reg))
	s := server.NewHttpServer(cfg.Server.Address, cfg.Server.ShutdownTimeout, directory.New(store), rl, reg)

	log.Info("server starting",
		zap.String("address", cfg.Server.Address),
		zap.String("backend", cfg.Directory.Backend))

	return s.Run(ctx)
}

func initDirectoryStore(ctx context.Context, cfg *config.Directory) (directory.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendMongo:
		client, err := initMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		repo := keyRepo.NewKeyRepo(client.Database(cfg.MongoDatabase))
		if err := repo.EnsureIndexes(ctx); err != nil {
			client.Disconnect(context.Background())
			return nil, nil, err
		}
		return repo, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Warn("disconnect mongo failed", zap.Error(err))
			}
		}, nil

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		svc := redisSvc.NewRedis(rdb)

		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := svc.Ping(pingCtx); err != nil {
			svc.Close()
			return nil, nil, err
		}
		return keyRepo.NewKeyCache(svc, cfg.RedisTTL), func() {
			if err := svc.Close(); err != nil {
				log.Warn("close redis failed", zap.Error(err))
			}
		}, nil

	default:
		return directory.NewMemoryStore(), func() {}, nil
	}
}

func initMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}
