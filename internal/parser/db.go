package parser

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"flow-validator/internal/model"
)

// Providers accepted by NewSQLParser, mapped to database/sql driver names.
var sqlDrivers = map[string]string{
	"mariadb": "mysql",
	"mysql":   "mysql",
	"sqlite":  "sqlite",
}

var schemas = map[string][]string{
	"mysql": {
		`CREATE TABLE IF NOT EXISTS fv_switch (
			id BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
			switch_id VARCHAR(128) NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS fv_port (
			id BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
			switch_id VARCHAR(128) NOT NULL,
			port_num INT UNSIGNED NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fv_flow_rule (
			id BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
			switch_id VARCHAR(128) NOT NULL,
			table_id INT UNSIGNED NOT NULL,
			priority INT NOT NULL,
			match_json LONGTEXT NOT NULL,
			actions_json LONGTEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fv_link (
			id BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
			src_switch VARCHAR(128) NOT NULL,
			src_port INT UNSIGNED NOT NULL,
			dst_switch VARCHAR(128) NOT NULL,
			dst_port INT UNSIGNED NOT NULL
		)`,
	},
	"sqlite": {
		`CREATE TABLE IF NOT EXISTS fv_switch (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			switch_id TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS fv_port (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			switch_id TEXT NOT NULL,
			port_num INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fv_flow_rule (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			switch_id TEXT NOT NULL,
			table_id INTEGER NOT NULL,
			priority INTEGER NOT NULL,
			match_json TEXT NOT NULL,
			actions_json TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fv_link (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			src_switch TEXT NOT NULL,
			src_port INTEGER NOT NULL,
			dst_switch TEXT NOT NULL,
			dst_port INTEGER NOT NULL
		)`,
	},
}

// SQLParser loads a NetworkGraph from the fv_* tables of a MariaDB or SQLite
// database.
type SQLParser struct {
	db     *sql.DB
	driver string

	Graph model.NetworkGraph
}

func NewSQLParser(provider, dsn string) (*SQLParser, error) {
	driver, ok := sqlDrivers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown database provider: %s", provider)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLParser{db: db, driver: driver}, nil
}

func (p *SQLParser) Close() {
	p.db.Close()
}

// EnsureSchema creates the fv_* tables if they do not exist.
func (p *SQLParser) EnsureSchema() error {
	for _, stmt := range schemas[p.driver] {
		if _, err := p.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (p *SQLParser) Parse() error {
	switches := make(map[string]*model.Switch)
	if err := p.loadSwitches(switches); err != nil {
		return fmt.Errorf("failed to load switches: %w", err)
	}
	if err := p.loadPorts(switches); err != nil {
		return fmt.Errorf("failed to load ports: %w", err)
	}
	if err := p.loadFlowRules(switches); err != nil {
		return fmt.Errorf("failed to load flow rules: %w", err)
	}
	if err := p.loadLinks(); err != nil {
		return fmt.Errorf("failed to load links: %w", err)
	}
	return nil
}

func (p *SQLParser) loadSwitches(switches map[string]*model.Switch) error {
	rows, err := p.db.Query("SELECT switch_id FROM fv_switch ORDER BY id ASC")
	if err != nil {
		return err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	p.Graph.Switches = make([]model.Switch, len(ids))
	for i, id := range ids {
		p.Graph.Switches[i].ID = id
		switches[id] = &p.Graph.Switches[i]
	}
	return nil
}

func (p *SQLParser) loadPorts(switches map[string]*model.Switch) error {
	rows, err := p.db.Query("SELECT switch_id, port_num FROM fv_port ORDER BY id ASC")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var switchID string
		var port uint32
		if err := rows.Scan(&switchID, &port); err != nil {
			return err
		}
		sw, ok := switches[switchID]
		if !ok {
			return model.Configf("port %d references unknown switch %q", port, switchID)
		}
		sw.Ports = append(sw.Ports, port)
	}
	return rows.Err()
}

func (p *SQLParser) loadFlowRules(switches map[string]*model.Switch) error {
	rows, err := p.db.Query("SELECT id, switch_id, table_id, priority, match_json, actions_json FROM fv_flow_rule ORDER BY id ASC")
	if err != nil {
		return err
	}
	defer rows.Close()

	tables := make(map[string]map[int]*model.FlowTable)
	for rows.Next() {
		var id int64
		var switchID, matchJSON, actionsJSON string
		var tableID int
		var rule model.FlowRule
		if err := rows.Scan(&id, &switchID, &tableID, &rule.Priority, &matchJSON, &actionsJSON); err != nil {
			return err
		}
		if _, ok := switches[switchID]; !ok {
			return model.Configf("flow rule %d references unknown switch %q", id, switchID)
		}
		if matchJSON != "" {
			if err := json.Unmarshal([]byte(matchJSON), &rule.Match); err != nil {
				return model.Configf("flow rule %d: match_json: %v", id, err)
			}
		}
		if err := json.Unmarshal([]byte(actionsJSON), &rule.Actions); err != nil {
			return model.Configf("flow rule %d: actions_json: %v", id, err)
		}

		byID, ok := tables[switchID]
		if !ok {
			byID = make(map[int]*model.FlowTable)
			tables[switchID] = byID
		}
		ft, ok := byID[tableID]
		if !ok {
			ft = &model.FlowTable{ID: tableID}
			byID[tableID] = ft
		}
		ft.Rules = append(ft.Rules, rule)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for switchID, byID := range tables {
		sw := switches[switchID]
		for _, ft := range byID {
			sw.FlowTables = append(sw.FlowTables, *ft)
		}
		sort.Slice(sw.FlowTables, func(i, j int) bool { return sw.FlowTables[i].ID < sw.FlowTables[j].ID })
	}
	return nil
}

func (p *SQLParser) loadLinks() error {
	rows, err := p.db.Query("SELECT src_switch, src_port, dst_switch, dst_port FROM fv_link ORDER BY id ASC")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var srcSwitch, dstSwitch string
		var srcPort, dstPort uint32
		if err := rows.Scan(&srcSwitch, &srcPort, &dstSwitch, &dstPort); err != nil {
			return err
		}
		p.Graph.Links = append(p.Graph.Links, model.Link{
			Src: model.Physical(srcSwitch, srcPort),
			Dst: model.Physical(dstSwitch, dstPort),
		})
	}
	return rows.Err()
}
