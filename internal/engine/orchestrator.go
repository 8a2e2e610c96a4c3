package engine

import (
	"context"
	"fmt"
	"log/slog"

	"flow-validator/internal/graph"
	"flow-validator/internal/headerspace"
	"flow-validator/internal/model"
)

// Task is one independent path search. It carries its own copy of the match
// and lambda, so workers share nothing but the graph.
type Task struct {
	Statement int
	Src       model.Port
	Dst       model.Port
	Lambda    model.Lambda
	Match     headerspace.Match
}

// Plan is a policy expanded into tasks, with each statement's constraints.
type Plan struct {
	Tasks       []Task
	Constraints [][]model.Constraint
}

// Report aggregates every tuple's paths and the constraint violations found
// over them.
type Report struct {
	Results    []model.TupleResult
	Violations []model.Violation
}

// Failed counts tuples whose search returned an error.
func (r Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Error != "" {
			n++
		}
	}
	return n
}

type Orchestrator struct {
	finder  *PathFinder
	workers int
	logger  *slog.Logger
}

func NewOrchestrator(finder *PathFinder, workers int, logger *slog.Logger) *Orchestrator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{finder: finder, workers: workers, logger: logger.With("component", "engine")}
}

// Plan expands every statement into (src, dst, lambda) tasks. Pairs whose
// source and destination are the same port are skipped. Any malformed
// statement rejects the whole policy.
func (o *Orchestrator) Plan(policy model.Policy) (*Plan, error) {
	g := o.finder.Graph()

	named := make(map[string]model.Lambda, len(policy.Lambdas))
	for _, l := range policy.Lambdas {
		if l.Name == "" {
			return nil, model.Configf("policy lambda without a name")
		}
		if l.Name == model.AnyLambda {
			return nil, model.Configf("lambda name %q is reserved", model.AnyLambda)
		}
		if _, dup := named[l.Name]; dup {
			return nil, model.Configf("lambda %q defined twice", l.Name)
		}
		links, err := resolveLinks(g, l.Links)
		if err != nil {
			return nil, fmt.Errorf("lambda %q: %w", l.Name, err)
		}
		l.Links = links
		named[l.Name] = l
	}

	plan := &Plan{Constraints: make([][]model.Constraint, len(policy.Statements))}
	for i, st := range policy.Statements {
		match, err := headerspace.Parse(st.Match)
		if err != nil {
			return nil, model.Configf("statement %d: match: %v", i, err)
		}
		lambdas, err := statementLambdas(g, named, st.Lambdas)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		constraints, err := normalizeConstraints(g, st.Constraints)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		plan.Constraints[i] = constraints

		for _, zone := range []model.Zone{st.SrcZone, st.DstZone} {
			for _, p := range zone.Ports {
				if !g.HasPort(p) {
					return nil, model.Configf("statement %d: zone %q references unknown port %s", i, zone.Name, p)
				}
			}
		}

		before := len(plan.Tasks)
		for _, src := range st.SrcZone.Ports {
			for _, dst := range st.DstZone.Ports {
				if src == dst {
					continue
				}
				for _, l := range lambdas {
					plan.Tasks = append(plan.Tasks, Task{Statement: i, Src: src, Dst: dst, Lambda: l, Match: match})
				}
			}
		}
		o.logger.Info("Statement planned", "statement", i, "name", st.Name, "tasks", len(plan.Tasks)-before)
	}
	return plan, nil
}

func statementLambdas(g *graph.Graph, named map[string]model.Lambda, in []model.Lambda) ([]model.Lambda, error) {
	if len(in) == 0 {
		return []model.Lambda{{Name: model.AnyLambda}}, nil
	}
	out := make([]model.Lambda, 0, len(in))
	for j, l := range in {
		switch {
		case len(l.Links) > 0:
			if l.Name == "" {
				l.Name = fmt.Sprintf("lambda%d", j)
			}
			links, err := resolveLinks(g, l.Links)
			if err != nil {
				return nil, fmt.Errorf("lambda %q: %w", l.Name, err)
			}
			l.Links = links
		case l.Name == "" || l.Name == model.AnyLambda:
			l.Name = model.AnyLambda
		default:
			def, ok := named[l.Name]
			if !ok {
				return nil, model.Configf("unknown lambda %q", l.Name)
			}
			l = def
		}
		out = append(out, l)
	}
	return out, nil
}

// Run executes every task on the worker pool and returns one result per task,
// in task order. A failed search is recorded on its tuple and does not stop
// the others.
func (o *Orchestrator) Run(ctx context.Context, tasks []Task) []model.TupleResult {
	return runPool(ctx, o.logger, o.workers, tasks, func(ctx context.Context, t Task) model.TupleResult {
		res := model.TupleResult{Statement: t.Statement, Src: t.Src, Dst: t.Dst, Lambda: t.Lambda.Name}
		paths, err := o.finder.FindPaths(ctx, t.Src, t.Dst, t.Match, t.Lambda)
		if err != nil {
			o.logger.Warn("Path search failed", "statement", t.Statement, "src", t.Src.String(), "dst", t.Dst.String(), "lambda", t.Lambda.Name, "error", err)
			res.Error = err.Error()
			return res
		}
		res.Paths = paths
		return res
	})
}

// Validate plans the policy, runs every task and checks each statement's
// constraints against the resulting path sets. Tuples that failed are not
// checked.
func (o *Orchestrator) Validate(ctx context.Context, policy model.Policy) (*Report, error) {
	plan, err := o.Plan(policy)
	if err != nil {
		return nil, err
	}
	report := &Report{Results: o.Run(ctx, plan.Tasks)}
	for _, res := range report.Results {
		if res.Error != "" {
			continue
		}
		for _, c := range plan.Constraints[res.Statement] {
			if ok, counter := checkConstraint(c, res.Paths); !ok {
				report.Violations = append(report.Violations, model.Violation{
					Statement:      res.Statement,
					Src:            res.Src,
					Dst:            res.Dst,
					Lambda:         res.Lambda,
					Constraint:     c,
					CounterExample: counter,
				})
			}
		}
	}
	return report, nil
}
