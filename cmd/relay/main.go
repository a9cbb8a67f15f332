package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/naivary/relay"
	"github.com/naivary/relay/config"
	"github.com/naivary/relay/drive"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

var (
	verbose  bool
	backend  string
	dataDir  string
	folderID string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "relay",
		Short: "Relay messages to a chat model or through a shared folder",
		Long: `relay accepts text messages over HTTP. Messages are either answered by a
chat completion API or written to a query file in a shared folder, where an
external producer answers them with a response file.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "storage backend (drive|local), overrides RELAY_BACKEND")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory of the local bucket, overrides RELAY_DATA_DIR")
	rootCmd.PersistentFlags().StringVar(&folderID, "folder", "", "container (folder id), overrides RELAY_FOLDER_ID")

	rootCmd.AddCommand(
		serveCmd(),
		uploadCmd(),
		fetchCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the relay over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rl, bucket, err := newRelay(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer rl.Close()

			opts := relay.DefaultHTTPHandlerOptions()
			opts.AllowedOrigins = cfg.AllowedOrigins
			opts.Bucket = bucket
			opts.Logger = logger
			srv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           relay.NewHTTPHandler(rl, opts),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("http server running", slog.String("addr", cfg.Addr), slog.String("backend", string(cfg.Backend)))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":5000", "listen address, overrides RELAY_ADDR")
	return cmd
}

func uploadCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Publish the query file to the shared folder",
		Long:  `Publish the current query file, optionally replacing its content with --message first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rl, _, err := newRelay(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer rl.Close()

			if message != "" {
				if err := rl.Queries().Write(message); err != nil {
					return err
				}
			}
			pub, err := rl.Publisher().Publish(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("File ID: %s\n", pub.ObjectID)
			fmt.Printf("File link: %s\n", pub.ShareLink)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "message written to the query file before publishing")
	return cmd
}

func fetchCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the response file from the shared folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			storage, _, err := newStorage(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer storage.Close()

			ref, err := storage.FindByName(ctx, cfg.ResponseFile)
			if relay.IsNotFound(err) {
				return fmt.Errorf("%s not found in folder %s", cfg.ResponseFile, cfg.FolderID)
			}
			if err != nil {
				return err
			}
			data, err := storage.Download(ctx, ref)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("Downloaded %d bytes as: %s\n", len(data), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "downloaded_response.txt", "local path of the downloaded response")
	return cmd
}

func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// loadConfig reads the environment and applies the
// persistent flags which were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = config.Backend(backend)
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("folder") {
		cfg.FolderID = folderID
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newStorage builds the storage client for the configured backend.
// The bucket is only returned for the local backend.
func newStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*relay.StorageClient, *relay.Bucket, error) {
	var (
		backend relay.Backend
		bucket  *relay.Bucket
	)
	switch cfg.Backend {
	case config.BackendLocal:
		opts := relay.NewInMemoryBucketOptions()
		if cfg.DataDir != "" {
			opts = relay.NewDefaultBucketOptions(cfg.DataDir)
		}
		opts.LinkBase = cfg.PublicURL
		b, err := relay.NewBucket(opts)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open bucket: %w", err)
		}
		backend, bucket = b, b
	case config.BackendDrive:
		d, err := drive.New(ctx, drive.Options{CredentialsFile: cfg.CredentialsFile})
		if err != nil {
			return nil, nil, err
		}
		backend = d
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	storage, err := relay.NewStorageClient(backend, cfg.FolderID, logger)
	if err != nil {
		backend.Shutdown()
		return nil, nil, err
	}
	return storage, bucket, nil
}

func newRelay(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*relay.Relay, *relay.Bucket, error) {
	storage, bucket, err := newStorage(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	var chat relay.Completer
	if cfg.OpenAIKey != "" {
		chatOpts := relay.DefaultChatOptions()
		chatOpts.APIKey = cfg.OpenAIKey
		chatOpts.BaseURL = cfg.OpenAIBaseURL
		chatOpts.Model = cfg.OpenAIModel
		chat = relay.NewOpenAIChat(chatOpts)
	} else {
		logger.Warn("OPENAI_API_KEY is not set, /ai-chat is disabled")
	}
	opts := relay.Options{
		QueryPath: cfg.QueryFile,
		Publisher: relay.PublisherOptions{
			MimeType:  cfg.MimeType,
			Recipient: cfg.ShareWith,
		},
		Poller: relay.PollerOptions{
			ObjectName: cfg.ResponseFile,
			Wait:       cfg.ResponseWait,
			Attempts:   cfg.PollAttempts,
			Interval:   cfg.PollInterval,
		},
	}
	rl, err := relay.New(storage, chat, opts, logger)
	if err != nil {
		storage.Close()
		return nil, nil, err
	}
	return rl, bucket, nil
}
