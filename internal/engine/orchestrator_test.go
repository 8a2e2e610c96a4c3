package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flow-validator/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newOrchestrator(t *testing.T, ng model.NetworkGraph, workers int) *Orchestrator {
	t.Helper()
	return NewOrchestrator(NewPathFinder(mustBuild(t, ng)), workers, quietLogger())
}

func zone(ports ...model.Port) model.Zone {
	return model.Zone{Ports: ports}
}

func TestPlanSkipsSelfPairs(t *testing.T) {
	o := newOrchestrator(t, twoSwitches(), 4)

	plan, err := o.Plan(model.Policy{Statements: []model.PolicyStatement{{
		SrcZone: zone(model.Physical("s1", 2)),
		DstZone: zone(model.Physical("s1", 2)),
	}}})
	require.NoError(t, err)
	assert.Empty(t, plan.Tasks)

	plan, err = o.Plan(model.Policy{Statements: []model.PolicyStatement{{
		SrcZone: zone(model.Physical("s1", 2)),
		DstZone: zone(model.Physical("s1", 2), model.Physical("s2", 2)),
	}}})
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 1)
	assert.Equal(t, model.Physical("s2", 2), plan.Tasks[0].Dst)
	assert.Equal(t, model.AnyLambda, plan.Tasks[0].Lambda.Name, "a statement without lambdas is unconstrained")
}

func TestPlanResolvesLambdas(t *testing.T) {
	o := newOrchestrator(t, ring(), 4)
	policy := model.Policy{
		Lambdas: []model.Lambda{{Name: "direct", Links: []model.Link{link("s1", 2, "s3", 1)}}},
		Statements: []model.PolicyStatement{{
			SrcZone: zone(model.Physical("s1", 3)),
			DstZone: zone(model.Physical("s3", 3)),
			Lambdas: []model.Lambda{
				{Name: "direct"},
				{Name: model.AnyLambda},
				{Name: "inline", Links: []model.Link{link("s2", 2, "s1", 1)}},
			},
		}},
	}

	plan, err := o.Plan(policy)
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 3)
	assert.Equal(t, "direct", plan.Tasks[0].Lambda.Name)
	assert.Equal(t, []model.Link{link("s3", 1, "s1", 2)}, plan.Tasks[0].Lambda.Links, "links resolve to the topology's orientation")
	assert.True(t, plan.Tasks[1].Lambda.Unconstrained())
	assert.Equal(t, []model.Link{link("s1", 1, "s2", 2)}, plan.Tasks[2].Lambda.Links)
	assert.Equal(t, []model.Constraint{{Type: model.ConstraintConnectivity}}, plan.Constraints[0])
}

func TestPlanRejectsMalformedPolicies(t *testing.T) {
	o := newOrchestrator(t, ring(), 4)
	pair := func(st model.PolicyStatement) model.PolicyStatement {
		st.SrcZone = zone(model.Physical("s1", 3))
		if len(st.DstZone.Ports) == 0 {
			st.DstZone = zone(model.Physical("s3", 3))
		}
		return st
	}

	tests := []struct {
		name   string
		policy model.Policy
	}{
		{
			name:   "unknown lambda",
			policy: model.Policy{Statements: []model.PolicyStatement{pair(model.PolicyStatement{Lambdas: []model.Lambda{{Name: "nope"}}})}},
		},
		{
			name: "duplicate lambda",
			policy: model.Policy{
				Lambdas:    []model.Lambda{{Name: "a"}, {Name: "a"}},
				Statements: []model.PolicyStatement{pair(model.PolicyStatement{})},
			},
		},
		{
			name:   "lambda on unknown link",
			policy: model.Policy{Lambdas: []model.Lambda{{Name: "a", Links: []model.Link{link("s1", 3, "s2", 3)}}}},
		},
		{
			name:   "reserved lambda name",
			policy: model.Policy{Lambdas: []model.Lambda{{Name: model.AnyLambda}}},
		},
		{
			name:   "unknown zone port",
			policy: model.Policy{Statements: []model.PolicyStatement{pair(model.PolicyStatement{DstZone: zone(model.Physical("s3", 9))})}},
		},
		{
			name:   "in_port in match",
			policy: model.Policy{Statements: []model.PolicyStatement{pair(model.PolicyStatement{Match: map[string]string{"in_port": "1"}})}},
		},
		{
			name:   "unknown header field",
			policy: model.Policy{Statements: []model.PolicyStatement{pair(model.PolicyStatement{Match: map[string]string{"color": "blue"}})}},
		},
		{
			name: "unknown constraint",
			policy: model.Policy{Statements: []model.PolicyStatement{pair(model.PolicyStatement{
				Constraints: []model.Constraint{{Type: "waypoint"}},
			})}},
		},
		{
			name: "negative max_links",
			policy: model.Policy{Statements: []model.PolicyStatement{pair(model.PolicyStatement{
				Constraints: []model.Constraint{{Type: model.ConstraintPathLength, MaxLinks: -1}},
			})}},
		},
		{
			name: "link_avoidance without links",
			policy: model.Policy{Statements: []model.PolicyStatement{pair(model.PolicyStatement{
				Constraints: []model.Constraint{{Type: model.ConstraintLinkAvoidance}},
			})}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := o.Plan(tc.policy)
			assert.ErrorIs(t, err, model.ErrConfiguration)
			assert.Nil(t, plan)
		})
	}
}

func TestRunIsIndependentOfPoolSize(t *testing.T) {
	hosts := zone(model.Physical("s1", 3), model.Physical("s2", 3), model.Physical("s3", 3))
	policy := model.Policy{Statements: []model.PolicyStatement{{SrcZone: hosts, DstZone: hosts}}}

	var reports []*Report
	for _, workers := range []int{1, 8} {
		o := newOrchestrator(t, ring(), workers)
		report, err := o.Validate(context.Background(), policy)
		require.NoError(t, err)
		require.Len(t, report.Results, 6)
		reports = append(reports, report)
	}
	if diff := cmp.Diff(reports[0], reports[1]); diff != "" {
		t.Fatalf("pool size changed the result (-1 worker +8 workers):\n%s", diff)
	}
	for _, res := range reports[0].Results {
		assert.Len(t, res.Paths, 2, "%s -> %s", res.Src, res.Dst)
	}
}

func TestRunRecordsPerTupleErrors(t *testing.T) {
	o := newOrchestrator(t, twoSwitches(), 2)
	tasks := []Task{
		{Src: model.Physical("s1", 2), Dst: model.Physical("s2", 2), Lambda: anyLambda},
		{Src: model.Physical("s1", 2), Dst: model.Physical("s7", 1), Lambda: anyLambda},
	}

	results := o.Run(context.Background(), tasks)
	require.Len(t, results, 2)
	assert.Empty(t, results[0].Error)
	assert.Len(t, results[0].Paths, 1, "a failing sibling must not cancel this tuple")
	assert.Contains(t, results[1].Error, "unknown destination port")
	assert.Equal(t, 1, Report{Results: results}.Failed())
}

func TestValidateReportsConstraintViolations(t *testing.T) {
	o := newOrchestrator(t, ring(), 4)
	src, dst := zone(model.Physical("s1", 3)), zone(model.Physical("s3", 3))
	twoHop := link("s2", 1, "s3", 2)

	tests := []struct {
		name        string
		constraints []model.Constraint
		violated    bool
		counterLen  int
	}{
		{name: "connectivity holds", constraints: nil},
		{name: "isolation", constraints: []model.Constraint{{Type: model.ConstraintIsolation}}, violated: true, counterLen: 2},
		{name: "path length ok", constraints: []model.Constraint{{Type: model.ConstraintPathLength, MaxLinks: 2}}},
		{name: "path length", constraints: []model.Constraint{{Type: model.ConstraintPathLength, MaxLinks: 1}}, violated: true, counterLen: 2},
		{name: "link avoidance", constraints: []model.Constraint{{Type: model.ConstraintLinkAvoidance, Links: []model.Link{twoHop}}}, violated: true, counterLen: 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			report, err := o.Validate(context.Background(), model.Policy{Statements: []model.PolicyStatement{{
				SrcZone: src, DstZone: dst, Constraints: tc.constraints,
			}}})
			require.NoError(t, err)
			if !tc.violated {
				assert.Empty(t, report.Violations)
				return
			}
			require.Len(t, report.Violations, 1)
			v := report.Violations[0]
			require.NotNil(t, v.CounterExample)
			assert.Len(t, v.CounterExample.Links, tc.counterLen)
			assert.Equal(t, tc.constraints[0].Type, v.Constraint.Type)
		})
	}
}

func TestValidateReportsUnreachableAsViolation(t *testing.T) {
	o := newOrchestrator(t, twoSwitches(), 4)

	report, err := o.Validate(context.Background(), model.Policy{Statements: []model.PolicyStatement{{
		SrcZone: zone(model.Physical("s2", 2)),
		DstZone: zone(model.Physical("s1", 2)),
	}}})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Empty(t, report.Results[0].Paths)
	assert.Empty(t, report.Results[0].Error)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, model.ConstraintConnectivity, report.Violations[0].Constraint.Type)
	assert.Nil(t, report.Violations[0].CounterExample)
}
