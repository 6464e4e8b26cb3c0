package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"orderflow/internal"
	"orderflow/internal/snapshot"
)

// DB is the local run journal and the snapshot.Store for config artifacts.
type DB struct {
	conn *sql.DB
	// single writer for config snapshots
	saveMu sync.Mutex
}

var _ snapshot.Store = (*DB)(nil)

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS config_snapshots (
  key TEXT PRIMARY KEY,
  version TEXT NOT NULL DEFAULT '',
  hash TEXT NOT NULL DEFAULT '',
  body BLOB NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS config_history (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  key TEXT NOT NULL,
  version TEXT NOT NULL DEFAULT '',
  hash TEXT NOT NULL DEFAULT '',
  body BLOB NOT NULL,
  savedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_config_history_key ON config_history(key);

CREATE TRIGGER IF NOT EXISTS config_history_no_update
BEFORE UPDATE ON config_history
BEGIN
  SELECT RAISE(ABORT, 'config_history is append-only');
END;

CREATE TRIGGER IF NOT EXISTS config_history_no_delete
BEFORE DELETE ON config_history
BEGIN
  SELECT RAISE(ABORT, 'config_history is append-only');
END;

CREATE TABLE IF NOT EXISTS documents (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  path TEXT NOT NULL,
  name TEXT NOT NULL,
  kind TEXT NOT NULL,
  hash TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'fetched',
  error TEXT NOT NULL DEFAULT '',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);

CREATE TABLE IF NOT EXISTS routed_lines (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  documentId INTEGER NOT NULL,
  seq INTEGER NOT NULL,
  lineNo INTEGER NOT NULL,
  lane TEXT NOT NULL,
  body TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(documentId, seq),
  FOREIGN KEY(documentId) REFERENCES documents(id)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  documentId INTEGER,
  policyVersion TEXT NOT NULL DEFAULT '',
  referenceVersion TEXT NOT NULL DEFAULT '',
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(documentId) REFERENCES documents(id)
);

CREATE TABLE IF NOT EXISTS reviews (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source TEXT NOT NULL,
  docId TEXT NOT NULL DEFAULT '',
  lineNo INTEGER NOT NULL DEFAULT 0,
  lane TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT '',
  reviewer TEXT NOT NULL DEFAULT '',
  body TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_reviews_doc ON reviews(docId, lineNo);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) Load(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := d.conn.QueryRowContext(ctx, `SELECT body FROM config_snapshots WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, snapshot.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Save replaces the current snapshot and appends the same body to config_history
// in one transaction.
func (d *DB) Save(ctx context.Context, key string, data []byte) error {
	d.saveMu.Lock()
	defer d.saveMu.Unlock()

	var head struct {
		Version string `json:"version"`
		Hash    string `json:"sha256"`
	}
	_ = json.Unmarshal(data, &head)

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO config_snapshots (key, version, hash, body) VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
  version=excluded.version,
  hash=excluded.hash,
  body=excluded.body,
  updatedAt=CURRENT_TIMESTAMP
`, key, head.Version, head.Hash, data); err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO config_history (key, version, hash, body) VALUES (?, ?, ?, ?)`,
		key, head.Version, head.Hash, data); err != nil {
		return fmt.Errorf("append history %s: %w", key, err)
	}

	return tx.Commit()
}

// Clear removes the current snapshot; history is kept.
func (d *DB) Clear(ctx context.Context, key string) error {
	d.saveMu.Lock()
	defer d.saveMu.Unlock()
	_, err := d.conn.ExecContext(ctx, `DELETE FROM config_snapshots WHERE key = ?`, key)
	return err
}

// ListHistory returns the newest revisions first. An empty key lists every key.
func (d *DB) ListHistory(ctx context.Context, key string, limit int) ([]internal.SnapshotRevision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, key, version, hash, body, savedAt
FROM config_history
WHERE (? = '' OR key = ?)
ORDER BY id DESC LIMIT ?
`, key, key, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.SnapshotRevision
	for rows.Next() {
		var r internal.SnapshotRevision
		if err := rows.Scan(&r.ID, &r.Key, &r.Version, &r.Hash, &r.Body, &r.SavedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RegisterDocument inserts a document unless one with the same content hash exists.
// The bool reports whether a new row was created.
func (d *DB) RegisterDocument(path, name, kind, hash string) (internal.DocumentRow, bool, error) {
	res, err := d.conn.Exec(`
INSERT INTO documents (path, name, kind, hash, status) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(hash) DO NOTHING
`, path, name, kind, hash, string(internal.DocumentFetched))
	if err != nil {
		return internal.DocumentRow{}, false, err
	}
	n, _ := res.RowsAffected()

	row, err := d.GetDocumentByHash(hash)
	if err != nil {
		return internal.DocumentRow{}, false, err
	}
	if row == nil {
		return internal.DocumentRow{}, false, errors.New("failed to register document")
	}
	return *row, n > 0, nil
}

const documentColumns = `id, path, name, kind, hash, status, error, createdAt`

func scanDocument(s interface{ Scan(...any) error }) (internal.DocumentRow, error) {
	var row internal.DocumentRow
	var status string
	err := s.Scan(&row.ID, &row.Path, &row.Name, &row.Kind, &row.Hash, &status, &row.Error, &row.CreatedAt)
	row.Status = internal.DocumentStatus(status)
	return row, err
}

func (d *DB) GetDocumentByHash(hash string) (*internal.DocumentRow, error) {
	row, err := scanDocument(d.conn.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE hash = ?`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetDocumentByID(id int) (*internal.DocumentRow, error) {
	row, err := scanDocument(d.conn.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListDocumentsByStatus(status internal.DocumentStatus, limit int) ([]internal.DocumentRow, error) {
	rows, err := d.conn.Query(`
SELECT `+documentColumns+`
FROM documents WHERE status = ? ORDER BY id ASC LIMIT ?
`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.DocumentRow
	for rows.Next() {
		row, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateDocumentStatus(id int, status internal.DocumentStatus, errMsg string) error {
	_, err := d.conn.Exec(`UPDATE documents SET status = ?, error = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`,
		string(status), errMsg, id)
	return err
}

// ReplaceRoutedLines drops earlier results for the document and stores rows in order.
func (d *DB) ReplaceRoutedLines(documentID int, rows []internal.RoutedOrderLine) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM routed_lines WHERE documentId = ?`, documentID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO routed_lines (documentId, seq, lineNo, lane, body) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range rows {
		body, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(documentID, i, r.LineNo, string(r.Lane), string(body)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) GetRoutedLines(documentID int) ([]internal.RoutedOrderLine, error) {
	rows, err := d.conn.Query(`SELECT body FROM routed_lines WHERE documentId = ? ORDER BY seq ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RoutedOrderLine
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var r internal.RoutedOrderLine
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("decode routed line: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) InsertRun(run internal.RunRow) error {
	timingsJSON, _ := json.Marshal(run.Timings)
	countsJSON, _ := json.Marshal(run.Counts)
	var documentID any
	if run.DocumentID > 0 {
		documentID = run.DocumentID
	}
	_, err := d.conn.Exec(`
INSERT INTO runs (traceId, documentId, policyVersion, referenceVersion, timingsJson, countsJson)
VALUES (?, ?, ?, ?, ?, ?)
`, run.TraceID, documentID, run.PolicyVersion, run.ReferenceVersion, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) ListRuns(limit int) ([]internal.RunRow, error) {
	rows, err := d.conn.Query(`
SELECT id, traceId, COALESCE(documentId, 0), policyVersion, referenceVersion, timingsJson, countsJson, createdAt
FROM runs ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunRow
	for rows.Next() {
		var r internal.RunRow
		var timingsJSON, countsJSON string
		if err := rows.Scan(&r.ID, &r.TraceID, &r.DocumentID, &r.PolicyVersion, &r.ReferenceVersion, &timingsJSON, &countsJSON, &r.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(timingsJSON), &r.Timings)
		_ = json.Unmarshal([]byte(countsJSON), &r.Counts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertReviews appends reviewed lines in one transaction. Earlier imports are kept.
func (d *DB) InsertReviews(rows []internal.ReviewRow) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO reviews (source, docId, lineNo, lane, status, reviewer, body)
VALUES (?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(r.Source, r.DocID, r.LineNo, string(r.Lane), r.Status, r.Reviewer, string(r.Body)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListReviews returns the newest reviewed lines first.
func (d *DB) ListReviews(limit int) ([]internal.ReviewRow, error) {
	rows, err := d.conn.Query(`
SELECT id, source, docId, lineNo, lane, status, reviewer, body, createdAt
FROM reviews ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ReviewRow
	for rows.Next() {
		var r internal.ReviewRow
		var lane, body string
		if err := rows.Scan(&r.ID, &r.Source, &r.DocID, &r.LineNo, &lane, &r.Status, &r.Reviewer, &body, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Lane = internal.Lane(lane)
		r.Body = []byte(body)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (d *DB) MustDocumentByID(id int) (internal.DocumentRow, error) {
	row, err := d.GetDocumentByID(id)
	if err != nil {
		return internal.DocumentRow{}, err
	}
	if row == nil {
		return internal.DocumentRow{}, fmt.Errorf("document not found: id=%d", id)
	}
	return *row, nil
}
