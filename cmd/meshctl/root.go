package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/simcoestone/modelmesh"
	"github.com/simcoestone/modelmesh/core"
	"github.com/simcoestone/modelmesh/internal/config"
	"github.com/simcoestone/modelmesh/logging"
	"github.com/simcoestone/modelmesh/metrics"
	"github.com/simcoestone/modelmesh/model"
	anthropicmodel "github.com/simcoestone/modelmesh/model/anthropic"
	openaimodel "github.com/simcoestone/modelmesh/model/openai"
)

type rootFlags struct {
	envFile    string
	endpoint   string
	provider   string
	logBackend string
}

// app is the per-invocation wiring shared by every sub-command.
type app struct {
	cfg      *config.Config
	logger   logging.Logger
	registry *prometheus.Registry
	mesh     *modelmesh.Mesh
	sync     func()
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	a := &app{}

	root := &cobra.Command{
		Use:           "meshctl",
		Short:         "Route agent tasks to local models and query the semantic mesh",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(flags)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.mesh != nil {
				_ = a.mesh.Stop()
			}
			if a.sync != nil {
				a.sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.envFile, "env-file", ".env", "dotenv file read before the environment")
	pf.StringVar(&flags.endpoint, "endpoint", "", "inference endpoint (overrides MESH_INFERENCE_ENDPOINT)")
	pf.StringVar(&flags.provider, "provider", "", "openai or anthropic (overrides MESH_PROVIDER)")
	pf.StringVar(&flags.logBackend, "log-backend", "slog", "slog or zap")

	root.AddCommand(
		newDiscoverCmd(a),
		newRouteCmd(a),
		newAskCmd(a),
		newRecallCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) init(flags *rootFlags) error {
	cfg := config.Load(flags.envFile)
	if flags.endpoint != "" {
		cfg.InferenceEndpoint = flags.endpoint
	}
	if flags.provider != "" {
		cfg.Provider = flags.provider
	}
	a.cfg = cfg

	switch flags.logBackend {
	case "zap":
		zl, err := newZap(cfg)
		if err != nil {
			return fmt.Errorf("build zap logger: %w", err)
		}
		adapter := logging.NewZapAdapter(zl)
		a.logger = adapter
		a.sync = func() { _ = adapter.Sync() }
	case "slog", "":
		a.logger = cfg.Logger()
	default:
		return fmt.Errorf("unknown log backend %q", flags.logBackend)
	}

	table, err := cfg.LoadCapabilityTable()
	if err != nil {
		return fmt.Errorf("capability table: %w", err)
	}

	backend, lister, err := newProvider(cfg)
	if err != nil {
		return err
	}

	a.registry = prometheus.NewRegistry()
	m := metrics.New(a.registry)

	a.mesh = modelmesh.New(func(o *modelmesh.Options) {
		cfg.Apply(o)
		o.CapabilityTable = table
		o.Backend = backend
		o.Lister = lister
		o.Logger = a.logger
		o.Metrics = m
	})
	return nil
}

func newZap(cfg *config.Config) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.LogFormat == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	switch cfg.LogLevel {
	case logging.LogLevelDebug:
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case logging.LogLevelWarn:
		zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case logging.LogLevelError:
		zc.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return zc.Build()
}

func newProvider(cfg *config.Config) (model.Backend, core.ModelLister, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		client := openaimodel.NewClient(cfg.InferenceEndpoint, cfg.APIKey)
		return openaimodel.NewBackend(client), openaimodel.NewLister(client), nil
	case config.ProviderAnthropic:
		// The default local endpoint is not an Anthropic server.
		endpoint := cfg.InferenceEndpoint
		if endpoint == config.DefaultInferenceEndpoint {
			endpoint = ""
		}
		client := anthropicmodel.NewClient(endpoint, cfg.APIKey)
		return anthropicmodel.NewBackend(client), anthropicmodel.NewLister(client), nil
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
