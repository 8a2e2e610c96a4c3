package parser

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"flow-validator/internal/model"
	"flow-validator/pkg/wellknown"
)

// defaultPriority is what ovs-ofctl assumes when a flow omits priority.
const defaultPriority = 32768

// Statistics and bookkeeping keys printed by dump-flows that carry no
// forwarding semantics.
var statKeys = map[string]bool{
	"cookie": true, "duration": true, "n_packets": true, "n_bytes": true,
	"idle_age": true, "hard_age": true, "idle_timeout": true, "hard_timeout": true,
	"importance": true, "send_flow_rem": true, "reset_counts": true,
	"out_port": true, "out_group": true, "check_overlap": true,
}

// Protocol shorthands expand to eth_type and ip_proto matches.
var protoKeywords = map[string][2]string{
	"ip":   {"0x0800", ""},
	"arp":  {"0x0806", ""},
	"icmp": {"0x0800", "1"},
	"tcp":  {"0x0800", "6"},
	"udp":  {"0x0800", "17"},
}

// OVS names that are not aliases in the header registry.
var ovsFieldNames = map[string]string{
	"ip_src": "ipv4_src",
	"ip_dst": "ipv4_dst",
}

// DumpFlowsParser reads the text printed by `ovs-ofctl dump-flows` into flow
// tables, one rule per line.
type DumpFlowsParser struct {
	scanner *bufio.Scanner
	line    int

	Tables map[int]*model.FlowTable
}

func NewDumpFlowsParser(reader io.Reader) *DumpFlowsParser {
	return &DumpFlowsParser{
		scanner: bufio.NewScanner(reader),
		Tables:  make(map[int]*model.FlowTable),
	}
}

func (p *DumpFlowsParser) Parse() error {
	for p.scanner.Scan() {
		p.line++
		line := strings.TrimSpace(p.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "NXST_") || strings.HasPrefix(line, "OFPST_") {
			continue
		}
		table, rule, err := parseFlowLine(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", p.line, err)
		}
		ft, ok := p.Tables[table]
		if !ok {
			ft = &model.FlowTable{ID: table}
			p.Tables[table] = ft
		}
		ft.Rules = append(ft.Rules, rule)
	}
	if err := p.scanner.Err(); err != nil {
		return fmt.Errorf("error reading flows: %w", err)
	}
	return nil
}

// FlowTables returns the parsed tables in ascending id order.
func (p *DumpFlowsParser) FlowTables() []model.FlowTable {
	tables := make([]model.FlowTable, 0, len(p.Tables))
	for _, ft := range p.Tables {
		tables = append(tables, *ft)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].ID < tables[j].ID })
	return tables
}

func parseFlowLine(line string) (int, model.FlowRule, error) {
	idx := strings.Index(line, "actions=")
	if idx < 0 {
		return 0, model.FlowRule{}, fmt.Errorf("no actions in %q", line)
	}
	head, actionText := line[:idx], strings.TrimSpace(line[idx+len("actions="):])

	table := 0
	rule := model.FlowRule{Priority: defaultPriority, Match: make(map[string]string)}
	var transport []string
	for _, tok := range strings.Split(head, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		key, value, hasValue := strings.Cut(tok, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if !hasValue {
			proto, ok := protoKeywords[key]
			if !ok {
				return 0, model.FlowRule{}, fmt.Errorf("unknown match keyword %q", key)
			}
			rule.Match["eth_type"] = proto[0]
			if proto[1] != "" {
				rule.Match["ip_proto"] = proto[1]
			}
			continue
		}
		switch {
		case statKeys[key]:
		case key == "table":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return 0, model.FlowRule{}, fmt.Errorf("invalid table %q", value)
			}
			table = n
		case key == "priority":
			n, err := strconv.Atoi(value)
			if err != nil {
				return 0, model.FlowRule{}, fmt.Errorf("invalid priority %q", value)
			}
			rule.Priority = n
		case key == wellknown.InPort:
			rule.Match[wellknown.InPort] = ovsPortName(value)
		case key == "tp_src" || key == "tp_dst":
			transport = append(transport, key+"="+value)
		default:
			name, err := headerField(key)
			if err != nil {
				return 0, model.FlowRule{}, err
			}
			rule.Match[name] = value
		}
	}
	// tp_* follow the transport protocol matched on the same line.
	for _, t := range transport {
		key, value, _ := strings.Cut(t, "=")
		rule.Match[transportField(rule.Match["ip_proto"], strings.TrimPrefix(key, "tp_"))] = value
	}

	actions, err := parseActions(actionText, rule.Match["ip_proto"])
	if err != nil {
		return 0, model.FlowRule{}, err
	}
	rule.Actions = actions
	return table, rule, nil
}

func headerField(key string) (string, error) {
	if name, ok := ovsFieldNames[key]; ok {
		return name, nil
	}
	entry, ok := wellknown.Field(key)
	if !ok {
		return "", fmt.Errorf("unsupported match field %q", key)
	}
	return entry.Name, nil
}

func transportField(ipProto, dir string) string {
	if ipProto == "17" {
		return "udp_" + dir
	}
	return "tcp_" + dir
}

// ovsPortName maps the symbolic port names dump-flows prints onto ours.
func ovsPortName(v string) string {
	switch strings.ToUpper(v) {
	case "CONTROLLER":
		return "controller"
	case "IN_PORT":
		return "in_port"
	}
	return v
}

// splitActions splits on commas outside parentheses.
func splitActions(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if tail := strings.TrimSpace(s[start:]); tail != "" {
		parts = append(parts, tail)
	}
	return parts
}

func parseActions(text, ipProto string) ([]model.Action, error) {
	parts := splitActions(text)
	if len(parts) == 0 {
		return []model.Action{{Type: model.ActionDrop}}, nil
	}
	var actions []model.Action
	for _, part := range parts {
		a, err := parseAction(part, ipProto)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func parseAction(part, ipProto string) (model.Action, error) {
	lower := strings.ToLower(part)
	name, arg, _ := strings.Cut(lower, ":")

	switch {
	case lower == "drop":
		return model.Action{Type: model.ActionDrop}, nil
	case strings.HasPrefix(lower, "controller"):
		return model.Action{Type: model.ActionOutput, Port: model.PortNumber{Kind: model.ControllerPort}}, nil
	case lower == "in_port":
		return model.Action{Type: model.ActionOutput, Port: model.PortNumber{Kind: model.InPortPort}}, nil
	case name == "output":
		n, err := model.ParsePortNumber(ovsPortName(arg))
		if err != nil {
			return model.Action{}, fmt.Errorf("action %q: %w", part, err)
		}
		return model.Action{Type: model.ActionOutput, Port: n}, nil
	case name == "goto_table":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return model.Action{}, fmt.Errorf("action %q: invalid table", part)
		}
		return model.Action{Type: model.ActionGotoTable, Table: n}, nil
	case strings.HasPrefix(lower, "resubmit(") && strings.HasSuffix(lower, ")"):
		// resubmit(,N) continues in table N; resubmit with a port is not modelled.
		inner := strings.TrimSuffix(strings.TrimPrefix(lower, "resubmit("), ")")
		port, tbl, ok := strings.Cut(inner, ",")
		n, err := strconv.Atoi(strings.TrimSpace(tbl))
		if !ok || strings.TrimSpace(port) != "" || err != nil {
			return model.Action{}, fmt.Errorf("unsupported action %q", part)
		}
		return model.Action{Type: model.ActionGotoTable, Table: n}, nil
	case name == "set_field":
		// set_field:value->field
		value, field, ok := strings.Cut(part[len("set_field:"):], "->")
		if !ok {
			return model.Action{}, fmt.Errorf("action %q: expected value->field", part)
		}
		f := strings.ToLower(strings.TrimSpace(field))
		if f == "tp_src" || f == "tp_dst" {
			f = transportField(ipProto, strings.TrimPrefix(f, "tp_"))
		} else {
			resolved, err := headerField(f)
			if err != nil {
				return model.Action{}, fmt.Errorf("action %q: %w", part, err)
			}
			f = resolved
		}
		return model.Action{Type: model.ActionSetField, Field: f, Value: strings.TrimSpace(value)}, nil
	}

	if field, ok := modActions[name]; ok && arg != "" {
		if field == "tp_dst" || field == "tp_src" {
			field = transportField(ipProto, strings.TrimPrefix(field, "tp_"))
		}
		return model.Action{Type: model.ActionSetField, Field: field, Value: part[len(name)+1:]}, nil
	}
	if n, err := strconv.ParseUint(lower, 10, 32); err == nil {
		return model.Action{Type: model.ActionOutput, Port: model.PhysicalNumber(uint32(n))}, nil
	}
	return model.Action{}, fmt.Errorf("unsupported action %q", part)
}

var modActions = map[string]string{
	"mod_vlan_vid": "vlan_id",
	"mod_dl_src":   "eth_src",
	"mod_dl_dst":   "eth_dst",
	"mod_nw_src":   "ipv4_src",
	"mod_nw_dst":   "ipv4_dst",
	"mod_tp_src":   "tp_src",
	"mod_tp_dst":   "tp_dst",
}
