package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lucasnoah/texlog/internal/logparse"
)

// ParseRun represents a row in the parse_runs table.
type ParseRun struct {
	ID          int64  `json:"id"`
	Source      string `json:"source"`
	Encoding    string `json:"encoding,omitempty"`
	Engine      string `json:"engine,omitempty"`
	Version     string `json:"version,omitempty"`
	Errors      int    `json:"errors"`
	Warnings    int    `json:"warnings"`
	BadBoxes    int    `json:"badboxes"`
	MissingRefs int    `json:"missing_refs"`
	ExitCode    *int   `json:"exit_code,omitempty"`
	DurationMs  int    `json:"duration_ms,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// Diagnostic represents a row in the diagnostics table.
type Diagnostic struct {
	ID       int64             `json:"id"`
	RunID    int64             `json:"run_id"`
	Kind     string            `json:"kind"`
	Position int               `json:"position"`
	Message  *logparse.Message `json:"message"`
}

// RunMeta carries what the caller knows about a run beyond the parser's results.
type RunMeta struct {
	Source     string
	Encoding   string
	ExitCode   *int
	DurationMs int
}

var storedKinds = []logparse.Kind{
	logparse.KindError,
	logparse.KindWarning,
	logparse.KindBadBox,
	logparse.KindMissingRef,
	logparse.KindInfo,
}

// LogParseRun stores a run and every diagnostic the parser collected, in
// one transaction. It returns the new run ID.
func (d *DB) LogParseRun(meta RunMeta, p *logparse.Parser) (int64, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var engine, version string
	if p.Engine != nil {
		engine, version = p.Engine.Engine, p.Engine.Version
	}
	c := p.Counts()

	var id int64
	err = tx.QueryRow(d.rebind(
		`INSERT INTO parse_runs (source, encoding, engine, version, errors, warnings, badboxes, missing_refs, exit_code, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		meta.Source, meta.Encoding, engine, version, c.Errors, c.Warnings, c.BadBoxes, c.MissingRefs,
		meta.ExitCode, meta.DurationMs,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("log parse run: %w", err)
	}

	stmt, err := tx.Prepare(d.rebind(
		`INSERT INTO diagnostics (run_id, kind, position, type, message, attributes, context)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return 0, fmt.Errorf("prepare diagnostic insert: %w", err)
	}
	defer stmt.Close()

	for _, kind := range storedKinds {
		for i, m := range p.All(kind) {
			attrs, err := json.Marshal(m.Attributes())
			if err != nil {
				return 0, fmt.Errorf("encode attributes: %w", err)
			}
			typ, _ := m.Get("type")
			msg, err := m.Get("message")
			if err != nil {
				// Missing references carry a key instead of a message.
				msg, _ = m.Get("key")
			}
			if _, err := stmt.Exec(id, kind.String(), i, typ, msg, string(attrs), strings.Join(m.ContextLines, "\n")); err != nil {
				return 0, fmt.Errorf("log diagnostic: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit parse run: %w", err)
	}
	return id, nil
}

const runColumns = `id, source, encoding, engine, version, errors, warnings, badboxes, missing_refs, exit_code, duration_ms, timestamp`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*ParseRun, error) {
	var r ParseRun
	var encoding, engine, version sql.NullString
	var exitCode, duration sql.NullInt64
	if err := row.Scan(&r.ID, &r.Source, &encoding, &engine, &version,
		&r.Errors, &r.Warnings, &r.BadBoxes, &r.MissingRefs, &exitCode, &duration, &r.Timestamp); err != nil {
		return nil, err
	}
	r.Encoding = encoding.String
	r.Engine = engine.String
	r.Version = version.String
	if exitCode.Valid {
		v := int(exitCode.Int64)
		r.ExitCode = &v
	}
	r.DurationMs = int(duration.Int64)
	return &r, nil
}

// GetParseRun returns a run by ID, or nil if none exists.
func (d *DB) GetParseRun(id int64) (*ParseRun, error) {
	row := d.conn.QueryRow(d.rebind(`SELECT `+runColumns+` FROM parse_runs WHERE id = ?`), id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get parse run: %w", err)
	}
	return r, nil
}

// ListParseRuns returns the most recent runs first, optionally restricted to
// one source. A limit <= 0 returns all runs.
func (d *DB) ListParseRuns(source string, limit int) ([]ParseRun, error) {
	query := `SELECT ` + runColumns + ` FROM parse_runs`
	var args []any
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.conn.Query(d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list parse runs: %w", err)
	}
	defer rows.Close()

	var runs []ParseRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan parse run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetDiagnostics returns a run's diagnostics in their original order. An
// empty kind returns every kind.
func (d *DB) GetDiagnostics(runID int64, kind string) ([]Diagnostic, error) {
	query := `SELECT id, run_id, kind, position, attributes, context FROM diagnostics WHERE run_id = ?`
	args := []any{runID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY id ASC`

	rows, err := d.conn.Query(d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("get diagnostics: %w", err)
	}
	defer rows.Close()

	var out []Diagnostic
	for rows.Next() {
		var diag Diagnostic
		var attrs, context string
		if err := rows.Scan(&diag.ID, &diag.RunID, &diag.Kind, &diag.Position, &attrs, &context); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		var m map[string]string
		if err := json.Unmarshal([]byte(attrs), &m); err != nil {
			return nil, fmt.Errorf("decode attributes for diagnostic %d: %w", diag.ID, err)
		}
		msg := logparse.NewMessage()
		for k, v := range m {
			msg.Set(k, v)
		}
		msg.ContextLines = strings.Split(context, "\n")
		diag.Message = msg
		out = append(out, diag)
	}
	return out, rows.Err()
}
