// Package service holds the analysis session and implements Initialize,
// ValidatePolicy and GetTimeToDisconnect independently of any transport.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"flow-validator/internal/engine"
	"flow-validator/internal/graph"
	"flow-validator/internal/model"
)

// Session is the state built by one successful Initialize. It is immutable
// and shared by every request until the next Initialize replaces it.
type Session struct {
	Graph  *graph.Graph
	Finder *engine.PathFinder
}

type Service struct {
	session atomic.Pointer[Session]
	workers int
	source  engine.SourceFactory
	logger  *slog.Logger
}

type Option func(*Service)

func WithWorkers(n int) Option {
	return func(s *Service) { s.workers = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithRandomSource replaces the estimator's default rngstream streams.
func WithRandomSource(f engine.SourceFactory) Option {
	return func(s *Service) { s.source = f }
}

func New(opts ...Option) *Service {
	s := &Service{workers: engine.DefaultWorkers}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "service")
	return s
}

// Session returns the current session, or nil before the first successful
// Initialize.
func (s *Service) Session() *Session { return s.session.Load() }

// Initialize builds the analysis graph for ng and makes it the current
// session. A failed build leaves the previous session in place.
func (s *Service) Initialize(ctx context.Context, ng model.NetworkGraph) (*model.InitializeInfo, error) {
	start := time.Now()
	s.logger.InfoContext(ctx, "Initializing analysis graph", "switches", len(ng.Switches), "links", len(ng.Links))

	g, err := graph.Build(ng)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to build analysis graph", "error", err)
		return &model.InitializeInfo{Reason: err.Error(), TimeTaken: since(start)}, err
	}
	s.session.Store(&Session{Graph: g, Finder: engine.NewPathFinder(g)})

	info := &model.InitializeInfo{
		Successful: true,
		TimeTaken:  since(start),
		Switches:   len(g.Switches()),
		Nodes:      g.NodeCount(),
		Edges:      g.EdgeCount(),
	}
	s.logger.InfoContext(ctx, "Analysis graph ready", "switches", info.Switches, "nodes", info.Nodes, "edges", info.Edges, "duration", time.Since(start))
	return info, nil
}

// ValidatePolicy finds every compliant path for each statement tuple and
// checks the statements' constraints. Violations are results, not failures;
// the call is unsuccessful only when the policy is malformed or a tuple's
// search failed.
func (s *Service) ValidatePolicy(ctx context.Context, policy model.Policy) (*model.ValidatePolicyInfo, error) {
	start := time.Now()
	sess := s.Session()
	if sess == nil {
		return &model.ValidatePolicyInfo{Reason: model.ErrGraphNotInitialized.Error(), TimeTaken: since(start)}, model.ErrGraphNotInitialized
	}

	orch := engine.NewOrchestrator(sess.Finder, s.workers, s.logger)
	report, err := orch.Validate(ctx, policy)
	if err != nil {
		s.logger.ErrorContext(ctx, "Policy rejected", "error", err)
		return &model.ValidatePolicyInfo{Reason: err.Error(), TimeTaken: since(start)}, err
	}

	info := &model.ValidatePolicyInfo{
		Successful: true,
		Results:    report.Results,
		Violations: report.Violations,
	}
	var outErr error
	if failed := report.Failed(); failed > 0 {
		info.Successful = false
		info.Reason = fmt.Sprintf("%d of %d tuples failed", failed, len(report.Results))
		outErr = errors.New(info.Reason)
	}
	info.TimeTaken = since(start)
	s.logger.InfoContext(ctx, "Policy validated", "statements", len(policy.Statements), "tuples", len(report.Results), "violations", len(report.Violations), "successful", info.Successful, "duration", time.Since(start))
	return info, outErr
}

// GetTimeToDisconnect estimates each pair's mean time to disconnect. The
// top-level mean and sd average the pairs that succeeded.
func (s *Service) GetTimeToDisconnect(ctx context.Context, req model.TimeToDisconnectRequest) (*model.TimeToDisconnectInfo, error) {
	start := time.Now()
	sess := s.Session()
	if sess == nil {
		return &model.TimeToDisconnectInfo{Reason: model.ErrGraphNotInitialized.Error(), TimeTaken: since(start)}, model.ErrGraphNotInitialized
	}
	if len(req.Pairs) == 0 {
		err := model.Configf("no port pairs given")
		return &model.TimeToDisconnectInfo{Reason: err.Error(), TimeTaken: since(start)}, err
	}

	opts := []engine.EstimatorOption{engine.WithEstimatorWorkers(s.workers), engine.WithEstimatorLogger(s.logger)}
	if s.source != nil {
		opts = append(opts, engine.WithRandomSource(s.source))
	}
	est := engine.NewEstimator(sess.Finder, opts...)
	pairs, err := est.EstimatePairs(ctx, req.Pairs, req.LinkFailureRate, req.NumIterations)
	if err != nil {
		s.logger.ErrorContext(ctx, "Time to disconnect rejected", "error", err)
		return &model.TimeToDisconnectInfo{Reason: err.Error(), TimeTaken: since(start)}, err
	}

	info := &model.TimeToDisconnectInfo{Successful: true, Pairs: pairs}
	ok := 0
	for _, p := range pairs {
		if p.Error != "" {
			continue
		}
		info.Mean += p.Mean
		info.StdDev += p.StdDev
		ok++
	}
	if ok > 0 {
		info.Mean /= float64(ok)
		info.StdDev /= float64(ok)
	}
	var outErr error
	if failed := len(pairs) - ok; failed > 0 {
		info.Successful = false
		info.Reason = fmt.Sprintf("%d of %d pairs failed", failed, len(pairs))
		outErr = errors.New(info.Reason)
	}
	info.TimeTaken = since(start)
	return info, outErr
}

func since(start time.Time) float64 {
	return time.Since(start).Seconds()
}
