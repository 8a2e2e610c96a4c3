package parser

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"flow-validator/internal/model"
)

type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

// FormatFromPath picks the decoder from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return 0, fmt.Errorf("unsupported file extension for %s: expected .yaml, .yml or .json", path)
}

func decode(r io.Reader, format Format, v any) error {
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	default:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		return dec.Decode(v)
	}
}

func DecodeNetworkGraph(r io.Reader, format Format) (*model.NetworkGraph, error) {
	var ng model.NetworkGraph
	if err := decode(r, format, &ng); err != nil {
		return nil, fmt.Errorf("error decoding topology: %w", err)
	}
	return &ng, nil
}

// LoadNetworkGraph reads a topology file. Switches naming a flows_file get
// their tables from that dump-flows capture, resolved relative to the
// topology file.
func LoadNetworkGraph(path string) (*model.NetworkGraph, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ng, err := DecodeNetworkGraph(f, format)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	for i := range ng.Switches {
		sw := &ng.Switches[i]
		if sw.FlowsFile == "" {
			continue
		}
		if len(sw.FlowTables) > 0 {
			return nil, model.Configf("switch %s: flow_tables and flows_file are mutually exclusive", sw.ID)
		}
		flowsPath := sw.FlowsFile
		if !filepath.IsAbs(flowsPath) {
			flowsPath = filepath.Join(dir, flowsPath)
		}
		tables, err := loadFlowsFile(flowsPath)
		if err != nil {
			return nil, fmt.Errorf("switch %s: %w", sw.ID, err)
		}
		sw.FlowTables = tables
	}
	return ng, nil
}

func loadFlowsFile(path string) ([]model.FlowTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p := NewDumpFlowsParser(f)
	if err := p.Parse(); err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}
	return p.FlowTables(), nil
}

func DecodePolicy(r io.Reader, format Format) (*model.Policy, error) {
	var policy model.Policy
	if err := decode(r, format, &policy); err != nil {
		return nil, fmt.Errorf("error decoding policy: %w", err)
	}
	return &policy, nil
}

func LoadPolicy(path string) (*model.Policy, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodePolicy(f, format)
}

// ParsePortPairs parses "src,dst" specs such as "s1:2,s2:2".
func ParsePortPairs(specs []string) ([]model.PortPair, error) {
	pairs := make([]model.PortPair, 0, len(specs))
	for _, spec := range specs {
		src, dst, ok := strings.Cut(spec, ",")
		if !ok {
			return nil, fmt.Errorf("invalid pair %q: expected src,dst", spec)
		}
		s, err := model.ParsePort(strings.TrimSpace(src))
		if err != nil {
			return nil, fmt.Errorf("invalid pair %q: %w", spec, err)
		}
		d, err := model.ParsePort(strings.TrimSpace(dst))
		if err != nil {
			return nil, fmt.Errorf("invalid pair %q: %w", spec, err)
		}
		pairs = append(pairs, model.PortPair{Src: s, Dst: d})
	}
	return pairs, nil
}
