package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"privly_chat/internal/config"
	"privly_chat/internal/repository/local"
	"privly_chat/internal/service/app"
	"privly_chat/internal/service/client"
	"privly_chat/internal/utils/log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type flags struct {
	configFile string
	identity   string
	server     string
	stateFile  string
	peer       string
}

func newRootCommand() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "client [identity]",
		Short: "End-to-end encrypted chat client",
		Long: `Opens a terminal chat session under the given identity.

On first start a key pair is generated and kept in the local state file.
The public key is re-registered with the directory on every start. Use
"/to <peer>" to switch conversations and Tab to move to the peer list.`,
		Example: `  # Chat as alice against a local server
  client alice

  # Start directly in a conversation with bob
  client alice --to bob --server chat.example.org:9090`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				f.identity = args[0]
			}
			return runClient(cmd.Context(), f)
		},
	}

	cmd.Flags().StringVarP(&f.configFile, "config", "f", "",
		"path to the client configuration file (TOML format)")
	cmd.Flags().StringVar(&f.identity, "identity", "", "identity to chat as")
	cmd.Flags().StringVar(&f.server, "server", "", "server address as host:port")
	cmd.Flags().StringVar(&f.stateFile, "state", "", "path to the local state database")
	cmd.Flags().StringVar(&f.peer, "to", "", "peer to open on start")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runClient(ctx context.Context, f flags) error {
	cfg, err := config.LoadClientFile(f.configFile)
	if err != nil {
		return fmt.Errorf("failed to load config file '%v': %w", f.configFile, err)
	}
	if f.identity != "" {
		cfg.Identity = f.identity
	}
	if f.server != "" {
		cfg.ServerAddress = f.server
	}
	if f.stateFile != "" {
		cfg.StateFile = f.stateFile
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return err
	}

	// The terminal belongs to the UI, so logs only go out when explicitly
	// configured for development.
	if cfg.Logging.Development {
		if err := log.Init(cfg.Logging.Level, true); err != nil {
			return err
		}
		defer log.Sync()
	}

	store, err := local.Open(cfg.StateFile, cfg.Identity)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer store.Close()

	keys, err := client.LoadOrCreateKeys(store)
	if err != nil {
		return err
	}

	c := client.New(cfg.Identity, client.NewAPI(cfg.ServerAddress, cfg.RequestTimeout, client.WithIdentityParam(cfg.IdentityParam)), store, keys)
	if err := app.NewApp(c).Run(ctx, f.peer); err != nil {
		log.Error("client stopped", zap.Error(err))
		return err
	}
	return nil
}
