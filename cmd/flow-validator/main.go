package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"flow-validator/internal/engine"
	"flow-validator/internal/model"
	"flow-validator/internal/parser"
	"flow-validator/internal/server"
	"flow-validator/internal/service"
)

var (
	logLevel string
	logFile  string
	workers  int

	topologyFile string
	policyFile   string
	provider     string
	dbDSN        string
	initSchema   bool
	serverAddr   string

	listenAddr     string
	outFile        string
	violationsFile string

	pairSpecs  []string
	rate       float64
	iterations int
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "flow-validator",
		Short: "Static flow and policy validation for software-defined networks",
		Long: `flow-validator builds an analysis graph from switch flow tables and
links, enumerates the header-space compliant paths between ports, checks policy
statements against them and estimates time to disconnect under link failures.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(setupLogger(logLevel, logFile))
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log file path (default: stderr)")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", engine.DefaultWorkers, "Number of concurrent path search workers")

	rootCmd.AddCommand(newServeCmd(), newValidateCmd(), newDisconnectCmd())
	return rootCmd
}

func addTopologyFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&topologyFile, "topology", "", "Topology file, .yaml/.yml or .json (for 'file' provider)")
	cmd.Flags().StringVar(&provider, "provider", "file", "Topology provider: 'file', 'mariadb' or 'sqlite'")
	cmd.Flags().StringVar(&dbDSN, "db", "", "Database connection string (for 'mariadb' and 'sqlite' providers)")
	cmd.Flags().BoolVar(&initSchema, "init-schema", false, "Create the topology tables if they do not exist (for 'mariadb' and 'sqlite' providers)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setupLogger(level, logFilePath string) *slog.Logger {
	var logWriter io.Writer = os.Stderr
	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			logWriter = f
		}
		// The logger is not set up yet, so a bad path silently falls back to stderr.
	}

	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "INFO":
		lvl = slog.LevelInfo
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(logWriter, &slog.HandlerOptions{Level: lvl}))
}

func loadTopology(provider, path, dsn string, createSchema bool) (*model.NetworkGraph, error) {
	switch provider {
	case "file":
		if path == "" {
			return nil, fmt.Errorf("topology file path must be provided for file provider")
		}
		return parser.LoadNetworkGraph(path)
	case "mariadb", "sqlite":
		if dsn == "" {
			return nil, fmt.Errorf("database connection string must be provided for %s provider", provider)
		}
		p, err := parser.NewSQLParser(provider, dsn)
		if err != nil {
			return nil, err
		}
		defer p.Close()
		if createSchema {
			slog.Info("Ensuring topology schema", "provider", provider)
			if err := p.EnsureSchema(); err != nil {
				return nil, err
			}
		}
		if err := p.Parse(); err != nil {
			return nil, err
		}
		return &p.Graph, nil
	default:
		return nil, fmt.Errorf("unknown topology provider: %s", provider)
	}
}

// validator is served either in process or by a remote flow validator.
type validator interface {
	Initialize(context.Context, model.NetworkGraph) (*model.InitializeInfo, error)
	ValidatePolicy(context.Context, model.Policy) (*model.ValidatePolicyInfo, error)
	GetTimeToDisconnect(context.Context, model.TimeToDisconnectRequest) (*model.TimeToDisconnectInfo, error)
}

func newValidator() (validator, func(), error) {
	if serverAddr == "" {
		return service.New(service.WithWorkers(workers), service.WithLogger(slog.Default())), func() {}, nil
	}
	c, err := server.Dial(serverAddr)
	if err != nil {
		return nil, nil, err
	}
	return c, func() { c.Close() }, nil
}

// initialize loads the topology and builds the graph in v.
func initialize(ctx context.Context, v validator) error {
	slog.Info("Loading topology...", "provider", provider)
	ng, err := loadTopology(provider, topologyFile, dbDSN, initSchema)
	if err != nil {
		slog.Error("Failed to load topology", "error", err)
		return err
	}
	info, err := v.Initialize(ctx, *ng)
	if info == nil {
		return err
	}
	if !info.Successful {
		slog.Error("Initialize failed", "reason", info.Reason)
		return errors.New(info.Reason)
	}
	slog.Info("Analysis graph initialized", "switches", info.Switches, "nodes", info.Nodes, "edges", info.Edges, "time_taken", info.TimeTaken)
	return nil
}
