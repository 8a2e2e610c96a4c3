package wellknown

import (
	"bytes"
	"encoding/csv"
	"io"
	"log"
	"strconv"
	"strings"

	_ "embed"
)

//go:embed header_fields.csv
var headerFieldsData string

//go:embed header_values.csv
var headerValuesData string

// InPort is the pseudo-field carrying the ingress port of a flow rule.
// It is not part of a header match.
const InPort = "in_port"

type FieldEntry struct {
	Name  string
	Width uint
}

// Max returns the largest value the field can hold.
func (f FieldEntry) Max() uint64 {
	if f.Width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << f.Width) - 1
}

var (
	fieldRegistry map[string]FieldEntry
	valueRegistry map[string]uint64
)

func init() {
	fieldRegistry = make(map[string]FieldEntry)
	valueRegistry = make(map[string]uint64)

	for _, record := range readEmbedded("header_fields.csv", headerFieldsData) {
		if len(record) < 3 {
			continue
		}
		width, err := strconv.Atoi(record[1])
		if err != nil || width <= 0 {
			continue
		}
		entry := FieldEntry{Name: strings.ToLower(record[0]), Width: uint(width)}
		fieldRegistry[entry.Name] = entry
		for _, alias := range strings.Split(record[2], "|") {
			alias = strings.ToLower(strings.TrimSpace(alias))
			if alias != "" {
				fieldRegistry[alias] = entry
			}
		}
	}

	for _, record := range readEmbedded("header_values.csv", headerValuesData) {
		if len(record) < 3 {
			continue
		}
		value, err := strconv.ParseUint(record[2], 10, 64)
		if err != nil {
			continue
		}
		valueRegistry[valueKey(record[0], record[1])] = value
	}
}

func readEmbedded(name, data string) [][]string {
	reader := csv.NewReader(bytes.NewBufferString(data))
	reader.TrimLeadingSpace = true
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Fatalf("Failed to read header from embedded %s: %v", name, err)
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to parse embedded %s: %v", name, err)
		}
		records = append(records, record)
	}
	return records
}

// Field resolves a header field name or alias to its canonical entry.
func Field(name string) (FieldEntry, bool) {
	entry, ok := fieldRegistry[strings.ToLower(strings.TrimSpace(name))]
	return entry, ok
}

// Value returns the numeric value of a named constant for the given
// canonical field, e.g. ("eth_type", "ipv4") or ("tcp_dst", "ssh").
func Value(field, name string) (uint64, bool) {
	value, ok := valueRegistry[valueKey(field, name)]
	return value, ok
}

// Fields returns the canonical field names in registry order.
func Fields() []string {
	var names []string
	seen := make(map[string]bool)
	for _, record := range readEmbedded("header_fields.csv", headerFieldsData) {
		name := strings.ToLower(record[0])
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

func valueKey(field, name string) string {
	return strings.ToLower(strings.TrimSpace(field)) + ":" + strings.ToLower(strings.TrimSpace(name))
}
