package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/iti/rngstream"

	"flow-validator/internal/headerspace"
	"flow-validator/internal/model"
)

// Uniform draws from U(0,1). *rngstream.RngStream satisfies it.
type Uniform interface {
	RandU01() float64
}

// SourceFactory returns the random stream used for one src/dst pair.
type SourceFactory func(name string) Uniform

// streamMu guards rngstream.New, which advances an unlocked package-level
// seed. Draws from a created stream touch only that stream.
var streamMu sync.Mutex

func defaultSource(name string) Uniform {
	streamMu.Lock()
	defer streamMu.Unlock()
	return rngstream.New(name)
}

// Estimate summarizes the simulated times to disconnect of one pair.
type Estimate struct {
	Mean    float64
	StdDev  float64
	Samples int
}

// Estimator runs the Monte Carlo time-to-disconnect simulation over a built
// graph. Link failures are tracked per iteration; the graph is never touched.
type Estimator struct {
	finder    *PathFinder
	newSource SourceFactory
	workers   int
	logger    *slog.Logger
}

type EstimatorOption func(*Estimator)

func WithRandomSource(f SourceFactory) EstimatorOption {
	return func(e *Estimator) { e.newSource = f }
}

func WithEstimatorWorkers(n int) EstimatorOption {
	return func(e *Estimator) { e.workers = n }
}

func WithEstimatorLogger(l *slog.Logger) EstimatorOption {
	return func(e *Estimator) { e.logger = l }
}

func NewEstimator(finder *PathFinder, opts ...EstimatorOption) *Estimator {
	e := &Estimator{finder: finder, newSource: defaultSource, workers: DefaultWorkers}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "engine")
	return e
}

func checkEstimateParams(rate float64, iterations int) error {
	if iterations <= 0 {
		return model.Configf("num_iterations must be positive, got %d", iterations)
	}
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return model.Configf("link_failure_rate must be a positive finite number, got %v", rate)
	}
	return nil
}

// TimeToDisconnect estimates the mean and sample standard deviation of the
// time until src can no longer reach dst when every link fails independently
// at the given rate.
func (e *Estimator) TimeToDisconnect(ctx context.Context, src, dst model.Port, rate float64, iterations int) (Estimate, error) {
	if err := checkEstimateParams(rate, iterations); err != nil {
		return Estimate{}, err
	}
	return e.estimate(ctx, e.newSource(pairName(src, dst)), src, dst, rate, iterations)
}

// EstimatePairs runs TimeToDisconnect for every pair on the worker pool.
// Per-pair failures are reported on the pair; invalid parameters fail the
// whole call.
func (e *Estimator) EstimatePairs(ctx context.Context, pairs []model.PortPair, rate float64, iterations int) ([]model.PairDisconnect, error) {
	if err := checkEstimateParams(rate, iterations); err != nil {
		return nil, err
	}
	type pairTask struct {
		pair model.PortPair
		rng  Uniform
	}
	// Streams are created up front so that each pair's draws do not depend
	// on scheduling.
	tasks := make([]pairTask, len(pairs))
	for i, p := range pairs {
		tasks[i] = pairTask{pair: p, rng: e.newSource(pairName(p.Src, p.Dst))}
	}
	return runPool(ctx, e.logger, e.workers, tasks, func(ctx context.Context, t pairTask) model.PairDisconnect {
		out := model.PairDisconnect{Src: t.pair.Src, Dst: t.pair.Dst}
		est, err := e.estimate(ctx, t.rng, t.pair.Src, t.pair.Dst, rate, iterations)
		if err != nil {
			e.logger.Warn("Time to disconnect failed", "src", t.pair.Src.String(), "dst", t.pair.Dst.String(), "error", err)
			out.Error = err.Error()
			return out
		}
		e.logger.Info("Time to disconnect estimated", "src", t.pair.Src.String(), "dst", t.pair.Dst.String(), "mean", est.Mean, "sd", est.StdDev, "iterations", est.Samples)
		out.Mean, out.StdDev = est.Mean, est.StdDev
		return out
	}), nil
}

func pairName(src, dst model.Port) string {
	return "ttd:" + src.String() + ">" + dst.String()
}

func (e *Estimator) estimate(ctx context.Context, rng Uniform, src, dst model.Port, rate float64, iterations int) (Estimate, error) {
	links := e.finder.Graph().Links()
	all := make(map[string]bool, len(links))
	for _, l := range links {
		all[l.Key()] = true
	}
	connected, err := e.finder.Connected(ctx, src, dst, headerspace.Wildcard(), all)
	if err != nil {
		return Estimate{}, err
	}
	if connected {
		return Estimate{}, fmt.Errorf("%s -> %s: %w", src, dst, model.ErrNeverDisconnects)
	}

	samples := make([]float64, 0, iterations)
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return Estimate{}, err
		}
		t, err := e.sample(ctx, rng, src, dst, rate, links)
		if err != nil {
			return Estimate{}, err
		}
		samples = append(samples, t)
	}
	mean, sd := meanStdDev(samples)
	return Estimate{Mean: mean, StdDev: sd, Samples: len(samples)}, nil
}

// sample fails live links one at a time, with exponential inter-failure times,
// until dst becomes unreachable from src, and returns the elapsed time.
func (e *Estimator) sample(ctx context.Context, rng Uniform, src, dst model.Port, rate float64, links []model.Link) (float64, error) {
	failed := make(map[string]bool, len(links))
	connected, err := e.finder.Connected(ctx, src, dst, headerspace.Wildcard(), failed)
	if err != nil || !connected {
		return 0, err
	}

	live := make([]model.Link, len(links))
	copy(live, links)
	elapsed := 0.0
	for len(live) > 0 {
		k := float64(len(live))
		elapsed += expDraw(rng, k*rate)

		i := int(rng.RandU01() * k)
		if i >= len(live) {
			i = len(live) - 1
		}
		failed[live[i].Key()] = true
		live[i] = live[len(live)-1]
		live = live[:len(live)-1]

		connected, err := e.finder.Connected(ctx, src, dst, headerspace.Wildcard(), failed)
		if err != nil {
			return 0, err
		}
		if !connected {
			return elapsed, nil
		}
	}
	return 0, model.ErrNeverDisconnects
}

// expDraw samples Exp(lambda) by inversion.
func expDraw(rng Uniform, lambda float64) float64 {
	u := rng.RandU01()
	if u <= 0 {
		u = math.SmallestNonzeroFloat64
	}
	return -math.Log(u) / lambda
}

func meanStdDev(xs []float64) (mean, sd float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if len(xs) == 1 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}
