package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex"
	"github.com/kailas-cloud/ragdex/internal/config"
	logpkg "github.com/kailas-cloud/ragdex/internal/logger"
)

var (
	configPath string
	envFiles   []string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "ragdex",
	Short: "Document ingestion and semantic search for RAG",
	Long: `ragdex ingests documents into a vector index and answers semantic
search over the indexed passages.

The configuration is read from --config, or from config/$ENV.yaml when the
flag is empty. Dotenv files given with --env-file are loaded first and
never override variables that are already set.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "config file (default config/$ENV.yaml)")
	pf.StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before the config")
	pf.BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

// loadConfig resolves the environment, dotenv files and YAML config.
func loadConfig() (config.Config, string, error) {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return config.Config{}, "", err
	}
	env := config.GetEnv()

	var (
		cfg config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		return config.Config{}, "", err
	}
	return cfg, env, nil
}

func newLogger(env string, cfg config.Config) (*zap.Logger, error) {
	logger, err := logpkg.NewLogger(env, logpkg.Options{
		Level:    cfg.Logging.Level,
		Encoding: cfg.Logging.Encoding,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

// session is a started client plus its logger for one command run.
type session struct {
	client *ragdex.Client
	logger *zap.Logger
	cfg    config.Config
}

func (s *session) close() {
	s.client.Close()
	_ = s.logger.Sync()
}

// openSession loads config and starts a client. Workers run until close.
func openSession(ctx context.Context) (*session, error) {
	cfg, env, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(env, cfg)
	if err != nil {
		return nil, err
	}

	client, err := ragdex.New(ctx, cfg, ragdex.WithLogger(logger))
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	if err := client.Start(ctx); err != nil {
		client.Close()
		_ = logger.Sync()
		return nil, err
	}
	return &session{client: client, logger: logger, cfg: cfg}, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
