// Package servecmder provides the serve command for running the folio
// API server.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/folio/api"
	"github.com/papercomputeco/folio/api/mcp"
	"github.com/papercomputeco/folio/pkg/config"
	"github.com/papercomputeco/folio/pkg/dotdir"
	"github.com/papercomputeco/folio/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/folio/pkg/embeddings/utils"
	"github.com/papercomputeco/folio/pkg/eventstream/kafka"
	"github.com/papercomputeco/folio/pkg/llm"
	llmopenai "github.com/papercomputeco/folio/pkg/llm/openai"
	"github.com/papercomputeco/folio/pkg/logger"
	"github.com/papercomputeco/folio/pkg/retrieval"
	"github.com/papercomputeco/folio/pkg/session"
	"github.com/papercomputeco/folio/pkg/vector/sqlitevec"
	"github.com/papercomputeco/folio/pkg/watcher"
)

type ServeCommander struct {
	listen     string
	storageDir string
	watchDir   string
	configDir  string
	debug      bool
	logger     *zap.Logger
}

const serveLongDesc string = `Run the folio API server.

The server exposes session management, document indexing, retrieval,
cross-session search, and a chat endpoint grounded in retrieved
passages. MCP tools are mounted at /mcp.

Flags override values from config.toml and FOLIO_* environment
variables.`

const serveShortDesc string = "Run the folio API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			cmder.configDir, err = cmd.Flags().GetString("config-dir")
			if err != nil {
				return fmt.Errorf("could not get config-dir flag: %v", err)
			}
			return cmder.run()
		},
	}

	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address for the API server to listen on")
	cmd.Flags().StringVarP(&cmder.storageDir, "storage-dir", "s", "", "Directory for session storage (default: .folio/sessions)")
	cmd.Flags().StringVarP(&cmder.watchDir, "watch", "w", "", "Directory to watch for documents to auto-ingest")

	return cmd
}

func (c *ServeCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	v, err := config.InitViper(c.configDir)
	if err != nil {
		return err
	}

	// Flags beat env and file values.
	listen := c.listen
	if listen == "" {
		listen = v.GetString("api.listen")
	}

	storageDir, err := c.resolveStorageDir(v)
	if err != nil {
		return err
	}

	watchDir := c.watchDir
	if watchDir == "" {
		watchDir = v.GetString("watch.dir")
	}

	store, err := session.NewStore(storageDir, c.logger)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}
	c.logger.Info("using session storage", zap.String("dir", storageDir))

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: v.GetString("embedding.provider"),
		TargetURL:    v.GetString("embedding.target"),
		Model:        v.GetString("embedding.model"),
		APIKey:       os.Getenv("OPENAI_API_KEY"),
		Dimensions:   v.GetInt("embedding.dimensions"),
	})
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	defer embedder.Close()

	serviceOpts, apiOpts, cleanup, err := c.buildOptions(v, embedder, storageDir)
	if err != nil {
		return err
	}
	defer cleanup()

	service, err := retrieval.NewService(retrieval.Config{
		ChunkSize:    v.GetInt("chunking.size"),
		ChunkOverlap: v.GetInt("chunking.overlap"),
		BatchSize:    v.GetInt("chunking.batch_size"),
	}, store, embedder, c.logger, serviceOpts...)
	if err != nil {
		return fmt.Errorf("creating retrieval service: %w", err)
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Service: service,
		Logger:  c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}
	apiOpts = append(apiOpts, api.WithMCPHandler(mcpServer.Handler()))

	apiServer := api.NewServer(api.Config{ListenAddr: listen}, service, embedder, c.logger, apiOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 2)

	if watchDir != "" {
		w, err := watcher.New(watchDir, service, c.logger)
		if err != nil {
			return fmt.Errorf("creating watcher: %w", err)
		}
		defer w.Close()

		go func() {
			if err := w.Run(ctx); err != nil {
				errChan <- fmt.Errorf("watcher error: %w", err)
			}
		}()
	}

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return apiServer.Shutdown()
	}
}

// resolveStorageDir picks the session directory: flag, then config,
// then <.folio>/sessions.
func (c *ServeCommander) resolveStorageDir(v *viper.Viper) (string, error) {
	if c.storageDir != "" {
		return c.storageDir, nil
	}
	if dir := v.GetString("storage.dir"); dir != "" {
		return dir, nil
	}

	target, err := dotdir.NewManager().Target(c.configDir)
	if err != nil {
		return "", fmt.Errorf("resolving storage directory: %w", err)
	}
	return filepath.Join(target, "sessions"), nil
}

// buildOptions wires the optional collaborators: the sqlite-vec shared
// index, the kafka event publisher, and the chat provider.
func (c *ServeCommander) buildOptions(v *viper.Viper, embedder embeddings.Embedder, storageDir string) ([]retrieval.Option, []api.Option, func(), error) {
	var (
		serviceOpts []retrieval.Option
		apiOpts     []api.Option
		closers     []func() error
	)
	cleanup := func() {
		for _, fn := range closers {
			if err := fn(); err != nil {
				c.logger.Warn("cleanup failed", zap.Error(err))
			}
		}
	}

	if v.GetString("vector_store.provider") == "sqlite" {
		path := v.GetString("vector_store.path")
		if path == "" {
			path = filepath.Join(storageDir, "shared.db")
		}

		shared, err := sqlitevec.NewSharedIndex(sqlitevec.Config{
			DBPath:     path,
			Dimensions: uint(embedder.Dimensions()),
		}, c.logger)
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("creating shared index: %w", err)
		}
		closers = append(closers, shared.Close)

		serviceOpts = append(serviceOpts, retrieval.WithSharedIndex(shared))
		apiOpts = append(apiOpts, api.WithSearcher(shared))
	}

	if v.GetBool("events.enabled") {
		publisher, err := kafka.NewPublisher(kafka.Config{
			Brokers: v.GetStringSlice("events.brokers"),
			Topic:   v.GetString("events.topic"),
		}, c.logger)
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("creating event publisher: %w", err)
		}
		closers = append(closers, publisher.Close)

		serviceOpts = append(serviceOpts, retrieval.WithPublisher(publisher))
	}

	var chat llm.Provider = llmopenai.NewProvider(llmopenai.Config{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		BaseURL: v.GetString("chat.target"),
		Model:   v.GetString("chat.model"),
	})
	closers = append(closers, chat.Close)
	apiOpts = append(apiOpts, api.WithChatProvider(chat))

	return serviceOpts, apiOpts, cleanup, nil
}
