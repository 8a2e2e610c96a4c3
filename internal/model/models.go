package model

type ActionType string // "output", "set_field", "goto_table", "drop"

const (
	ActionOutput    ActionType = "output"
	ActionSetField  ActionType = "set_field"
	ActionGotoTable ActionType = "goto_table"
	ActionDrop      ActionType = "drop"
)

type Action struct {
	Type  ActionType `json:"type" yaml:"type"`
	Port  PortNumber `json:"port,omitempty" yaml:"port,omitempty"`
	Field string     `json:"field,omitempty" yaml:"field,omitempty"`
	Value string     `json:"value,omitempty" yaml:"value,omitempty"`
	Table int        `json:"table,omitempty" yaml:"table,omitempty"`
}

type FlowRule struct {
	Priority int               `json:"priority" yaml:"priority"`
	Match    map[string]string `json:"match,omitempty" yaml:"match,omitempty"`
	Actions  []Action          `json:"actions" yaml:"actions"`
}

type FlowTable struct {
	ID    int        `json:"table_id" yaml:"table_id"`
	Rules []FlowRule `json:"rules" yaml:"rules"`
}

type Switch struct {
	ID         string      `json:"switch_id" yaml:"switch_id"`
	Ports      []uint32    `json:"ports" yaml:"ports"`
	FlowTables []FlowTable `json:"flow_tables,omitempty" yaml:"flow_tables,omitempty"`
	// FlowsFile names an ovs-ofctl dump-flows capture holding this switch's tables.
	FlowsFile string `json:"flows_file,omitempty" yaml:"flows_file,omitempty"`
}

// NetworkGraph is the Initialize input.
type NetworkGraph struct {
	Switches []Switch `json:"switches" yaml:"switches"`
	Links    []Link   `json:"links" yaml:"links"`
}

// AnyLambda is the reserved lambda name that places no constraint on links.
const AnyLambda = "any"

type Lambda struct {
	Name  string `json:"name" yaml:"name"`
	Links []Link `json:"links,omitempty" yaml:"links,omitempty"`
}

// Unconstrained reports whether the lambda admits every link.
func (l Lambda) Unconstrained() bool { return len(l.Links) == 0 }

type Zone struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Ports []Port `json:"ports" yaml:"ports"`
}

type ConstraintType string

const (
	ConstraintConnectivity  ConstraintType = "connectivity"
	ConstraintIsolation     ConstraintType = "isolation"
	ConstraintPathLength    ConstraintType = "path_length"
	ConstraintLinkAvoidance ConstraintType = "link_avoidance"
)

type Constraint struct {
	Type     ConstraintType `json:"type" yaml:"type"`
	MaxLinks int            `json:"max_links,omitempty" yaml:"max_links,omitempty"`
	Links    []Link         `json:"links,omitempty" yaml:"links,omitempty"`
}

type PolicyStatement struct {
	Name        string            `json:"name,omitempty" yaml:"name,omitempty"`
	SrcZone     Zone              `json:"src_zone" yaml:"src_zone"`
	DstZone     Zone              `json:"dst_zone" yaml:"dst_zone"`
	Match       map[string]string `json:"match,omitempty" yaml:"match,omitempty"`
	Lambdas     []Lambda          `json:"lmbdas,omitempty" yaml:"lmbdas,omitempty"`
	Constraints []Constraint      `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// Policy is the ValidatePolicy input. Lambdas declared here may be referenced
// by name from any statement.
type Policy struct {
	Lambdas    []Lambda          `json:"lmbdas,omitempty" yaml:"lmbdas,omitempty"`
	Statements []PolicyStatement `json:"policy_statements" yaml:"policy_statements"`
}

type Path struct {
	Nodes []string `json:"nodes" yaml:"nodes"`
	Links []Link   `json:"links,omitempty" yaml:"links,omitempty"`
}

type TupleResult struct {
	Statement int    `json:"statement"`
	Src       Port   `json:"src"`
	Dst       Port   `json:"dst"`
	Lambda    string `json:"lmbda"`
	Paths     []Path `json:"paths"`
	Error     string `json:"error,omitempty"`
}

type Violation struct {
	Statement      int        `json:"statement"`
	Src            Port       `json:"src"`
	Dst            Port       `json:"dst"`
	Lambda         string     `json:"lmbda"`
	Constraint     Constraint `json:"constraint"`
	CounterExample *Path      `json:"counter_example,omitempty"`
}

type InitializeInfo struct {
	Successful bool    `json:"successful"`
	Reason     string  `json:"reason,omitempty"`
	TimeTaken  float64 `json:"time_taken"`
	Switches   int     `json:"switches"`
	Nodes      int     `json:"nodes"`
	Edges      int     `json:"edges"`
}

type ValidatePolicyInfo struct {
	Successful bool          `json:"successful"`
	Reason     string        `json:"reason,omitempty"`
	TimeTaken  float64       `json:"time_taken"`
	Results    []TupleResult `json:"results,omitempty"`
	Violations []Violation   `json:"violations,omitempty"`
}

type PortPair struct {
	Src Port `json:"src" yaml:"src"`
	Dst Port `json:"dst" yaml:"dst"`
}

type TimeToDisconnectRequest struct {
	Pairs           []PortPair `json:"pairs"`
	LinkFailureRate float64    `json:"link_failure_rate"`
	NumIterations   int        `json:"num_iterations"`
}

type PairDisconnect struct {
	Src    Port    `json:"src"`
	Dst    Port    `json:"dst"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"sd"`
	Error  string  `json:"error,omitempty"`
}

type TimeToDisconnectInfo struct {
	Successful bool             `json:"successful"`
	Reason     string           `json:"reason,omitempty"`
	TimeTaken  float64          `json:"time_taken"`
	Mean       float64          `json:"mean"`
	StdDev     float64          `json:"sd"`
	Pairs      []PairDisconnect `json:"pairs,omitempty"`
}
