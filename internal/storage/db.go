package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"finstat/internal"
)

// ErrNotFound is returned when a document or extraction does not exist.
var ErrNotFound = eris.New("not found")

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrap(err, "create db dir")
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "open sqlite")
	}

	// sqlite allows one writer at a time.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON;`); err != nil {
		_ = conn.Close()
		return nil, eris.Wrap(err, "configure sqlite")
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, eris.Wrap(err, "init schema")
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  kind TEXT NOT NULL,
  path TEXT NOT NULL,
  hash TEXT NOT NULL UNIQUE,
  size INTEGER NOT NULL DEFAULT 0,
  pages INTEGER NOT NULL DEFAULT 0,
  bank TEXT,
  period TEXT,
  source TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);

CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS extractions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  documentId TEXT NOT NULL,
  position INTEGER NOT NULL,
  metricName TEXT NOT NULL,
  value REAL NOT NULL,
  rawValueText TEXT NOT NULL,
  unit TEXT,
  currency TEXT,
  sourcePage INTEGER NOT NULL,
  confidence TEXT NOT NULL,
  flagsJson TEXT NOT NULL,
  contextJson TEXT NOT NULL,
  matchedLabel TEXT NOT NULL,
  selected INTEGER NOT NULL,
  reviewAccepted INTEGER,
  reviewer TEXT,
  reviewNote TEXT,
  reviewedAt TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(documentId) REFERENCES documents(id)
);
CREATE INDEX IF NOT EXISTS idx_extractions_document ON extractions(documentId, position);

CREATE TABLE IF NOT EXISTS sanity (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  documentId TEXT NOT NULL,
  position INTEGER NOT NULL,
  level TEXT NOT NULL,
  message TEXT NOT NULL,
  FOREIGN KEY(documentId) REFERENCES documents(id)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  documentId TEXT,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

const documentColumns = `id, name, kind, path, hash, size, pages, bank, period, source, status, createdAt`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(s rowScanner) (internal.Document, error) {
	var doc internal.Document
	var kind, status string
	err := s.Scan(&doc.ID, &doc.Name, &kind, &doc.Path, &doc.Hash, &doc.Size, &doc.Pages, &doc.Bank, &doc.Period, &doc.Source, &status, &doc.CreatedAt)
	doc.Kind = internal.DocumentKind(kind)
	doc.Status = internal.DocumentStatus(status)
	return doc, err
}

func (d *DB) InsertDocument(doc internal.Document) (internal.Document, error) {
	if doc.Status == "" {
		doc.Status = internal.StatusPending
	}
	_, err := d.conn.Exec(`
INSERT INTO documents (id, name, kind, path, hash, size, pages, bank, period, source, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, doc.ID, doc.Name, string(doc.Kind), doc.Path, doc.Hash, doc.Size, doc.Pages, doc.Bank, doc.Period, doc.Source, string(doc.Status))
	if err != nil {
		return internal.Document{}, eris.Wrapf(err, "insert document %s", doc.ID)
	}
	return d.GetDocument(doc.ID)
}

func (d *DB) GetDocument(id string) (internal.Document, error) {
	doc, err := scanDocument(d.conn.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return internal.Document{}, eris.Wrapf(ErrNotFound, "document %s", id)
	}
	if err != nil {
		return internal.Document{}, eris.Wrapf(err, "get document %s", id)
	}
	return doc, nil
}

// GetDocumentByHash returns nil when no document has the given content hash.
func (d *DB) GetDocumentByHash(hash string) (*internal.Document, error) {
	doc, err := scanDocument(d.conn.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE hash = ?`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *DB) ListDocuments() ([]internal.Document, error) {
	return d.queryDocuments(`SELECT `+documentColumns+` FROM documents ORDER BY createdAt ASC, id ASC`)
}

func (d *DB) ListDocumentsByStatus(status internal.DocumentStatus, limit int) ([]internal.Document, error) {
	return d.queryDocuments(`SELECT `+documentColumns+` FROM documents WHERE status = ? ORDER BY createdAt ASC, id ASC LIMIT ?`, string(status), limit)
}

func (d *DB) queryDocuments(query string, args ...any) ([]internal.Document, error) {
	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (d *DB) UpdateDocumentStatus(id string, status internal.DocumentStatus) error {
	res, err := d.conn.Exec(`UPDATE documents SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	return requireAffected(res, "document "+id)
}

func (d *DB) UpdateDocumentPages(id string, pages int) error {
	_, err := d.conn.Exec(`UPDATE documents SET pages = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, pages, id)
	return err
}

// ReplaceResult drops any earlier extraction of the document and stores
// result in its place. Item order is preserved.
func (d *DB) ReplaceResult(documentID string, result internal.ExtractionResult) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM extractions WHERE documentId = ?`, documentID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM sanity WHERE documentId = ?`, documentID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO extractions (
  documentId, position, metricName, value, rawValueText, unit, currency,
  sourcePage, confidence, flagsJson, contextJson, matchedLabel, selected
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, item := range result.Items {
		flags := item.Flags
		if flags == nil {
			flags = []string{}
		}
		flagsJSON, _ := json.Marshal(flags)
		contextJSON, _ := json.Marshal(item.Context)
		var unit *string
		if item.Unit != nil {
			u := string(*item.Unit)
			unit = &u
		}
		if _, err := stmt.Exec(
			documentID, i, item.MetricName, item.Value, item.RawValueText, unit, item.Currency,
			item.SourcePage, string(item.Confidence), string(flagsJSON), string(contextJSON), item.MatchedLabel, item.Selected,
		); err != nil {
			return eris.Wrapf(err, "insert extraction %s", item.MetricName)
		}
	}

	for i, entry := range result.Sanity {
		if _, err := tx.Exec(`INSERT INTO sanity (documentId, position, level, message) VALUES (?, ?, ?, ?)`,
			documentID, i, string(entry.Level), entry.Message); err != nil {
			return err
		}
	}

	return tx.Commit()
}

const extractionColumns = `id, documentId, metricName, value, rawValueText, unit, currency, sourcePage,
  confidence, flagsJson, contextJson, matchedLabel, selected,
  reviewAccepted, reviewer, reviewNote, reviewedAt`

func scanExtraction(s rowScanner) (internal.StoredMetric, error) {
	var m internal.StoredMetric
	var unit *string
	var confidence, flagsJSON, contextJSON string
	var accepted *bool
	var reviewer, note, reviewedAt *string
	if err := s.Scan(
		&m.ID, &m.DocumentID, &m.MetricName, &m.Value, &m.RawValueText, &unit, &m.Currency, &m.SourcePage,
		&confidence, &flagsJSON, &contextJSON, &m.MatchedLabel, &m.Selected,
		&accepted, &reviewer, &note, &reviewedAt,
	); err != nil {
		return m, err
	}
	if unit != nil {
		u := internal.Unit(*unit)
		m.Unit = &u
	}
	m.Confidence = internal.Confidence(confidence)
	m.Flags = []string{}
	_ = json.Unmarshal([]byte(flagsJSON), &m.Flags)
	_ = json.Unmarshal([]byte(contextJSON), &m.Context)
	if accepted != nil {
		m.Review = &internal.Review{Accepted: *accepted}
		if reviewer != nil {
			m.Review.Reviewer = *reviewer
		}
		if note != nil {
			m.Review.Note = *note
		}
		if reviewedAt != nil {
			m.Review.ReviewedAt = *reviewedAt
		}
	}
	return m, nil
}

// GetResult returns the stored extraction of a document. A document that was
// never processed yields an empty result.
func (d *DB) GetResult(documentID string) (internal.StoredResult, error) {
	if _, err := d.GetDocument(documentID); err != nil {
		return internal.StoredResult{}, err
	}

	rows, err := d.conn.Query(`SELECT `+extractionColumns+` FROM extractions WHERE documentId = ? ORDER BY position ASC`, documentID)
	if err != nil {
		return internal.StoredResult{}, err
	}
	defer rows.Close()

	result := internal.StoredResult{DocumentID: documentID, Items: []internal.StoredMetric{}, Sanity: internal.SanityReport{}}
	for rows.Next() {
		m, err := scanExtraction(rows)
		if err != nil {
			return internal.StoredResult{}, err
		}
		result.Items = append(result.Items, m)
	}
	if err := rows.Err(); err != nil {
		return internal.StoredResult{}, err
	}
	_ = rows.Close()

	sanity, err := d.conn.Query(`SELECT level, message FROM sanity WHERE documentId = ? ORDER BY position ASC`, documentID)
	if err != nil {
		return internal.StoredResult{}, err
	}
	defer sanity.Close()
	for sanity.Next() {
		var level, message string
		if err := sanity.Scan(&level, &message); err != nil {
			return internal.StoredResult{}, err
		}
		result.Sanity = append(result.Sanity, internal.SanityEntry{Level: internal.SanityLevel(level), Message: message})
	}
	return result, sanity.Err()
}

func (d *DB) GetExtraction(id int64) (internal.StoredMetric, error) {
	m, err := scanExtraction(d.conn.QueryRow(`SELECT `+extractionColumns+` FROM extractions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return internal.StoredMetric{}, eris.Wrapf(ErrNotFound, "extraction %d", id)
	}
	return m, err
}

// ReviewExtraction records a QC decision on one extracted metric.
func (d *DB) ReviewExtraction(id int64, accepted bool, reviewer, note string) (internal.StoredMetric, error) {
	res, err := d.conn.Exec(`
UPDATE extractions
SET reviewAccepted = ?, reviewer = ?, reviewNote = ?, reviewedAt = CURRENT_TIMESTAMP
WHERE id = ?
`, accepted, reviewer, note, id)
	if err != nil {
		return internal.StoredMetric{}, err
	}
	if err := requireAffected(res, "extraction"); err != nil {
		return internal.StoredMetric{}, err
	}
	return d.GetExtraction(id)
}

func (d *DB) InsertRun(traceID string, documentID string, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	var docID *string
	if documentID != "" {
		docID = &documentID
	}
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, documentId, timingsJson, countsJson) VALUES (?, ?, ?, ?)`, traceID, docID, string(timingsJSON), string(countsJSON))
	return err
}

// CountRuns returns how many runs were recorded for a document.
func (d *DB) CountRuns(documentID string) (int, error) {
	var n int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM runs WHERE documentId = ?`, documentID).Scan(&n)
	return n, err
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

// GetExportRows joins extractions with their documents. Selected records of
// each metric come before alternates.
func (d *DB) GetExportRows(documentIDs []string) ([]internal.MetricExportRow, error) {
	if len(documentIDs) == 0 {
		return []internal.MetricExportRow{}, nil
	}
	placeholders, args := inClause(documentIDs)
	rows, err := d.conn.Query(`
SELECT
  d.id, d.name, d.bank, d.period,
  e.id, e.metricName, e.value, e.rawValueText, e.unit, e.currency, e.sourcePage,
  e.confidence, e.flagsJson, e.contextJson, e.matchedLabel, e.selected,
  e.reviewAccepted, e.reviewer, e.reviewNote
FROM extractions e
JOIN documents d ON d.id = e.documentId
WHERE e.documentId IN (`+placeholders+`)
ORDER BY d.createdAt ASC, d.id ASC, e.position ASC
`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.MetricExportRow{}
	for rows.Next() {
		var row internal.MetricExportRow
		var flagsJSON, contextJSON string
		var accepted *bool
		if err := rows.Scan(
			&row.DocumentID, &row.DocumentName, &row.Bank, &row.Period,
			&row.ExtractionID, &row.MetricName, &row.Value, &row.RawValueText, &row.Unit, &row.Currency, &row.SourcePage,
			&row.Confidence, &flagsJSON, &contextJSON, &row.MatchedLabel, &row.Selected,
			&accepted, &row.Reviewer, &row.ReviewNote,
		); err != nil {
			return nil, err
		}
		var flags []string
		_ = json.Unmarshal([]byte(flagsJSON), &flags)
		row.Flags = strings.Join(flags, ",")
		var ctx internal.MetricContext
		_ = json.Unmarshal([]byte(contextJSON), &ctx)
		row.ContextLine = ctx.Current
		if accepted != nil {
			status := "rejected"
			if *accepted {
				status = "accepted"
			}
			row.ReviewStatus = &status
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) GetSanityRows(documentIDs []string) ([]internal.SanityExportRow, error) {
	if len(documentIDs) == 0 {
		return []internal.SanityExportRow{}, nil
	}
	placeholders, args := inClause(documentIDs)
	rows, err := d.conn.Query(`
SELECT s.documentId, s.level, s.message
FROM sanity s
JOIN documents d ON d.id = s.documentId
WHERE s.documentId IN (`+placeholders+`)
ORDER BY d.createdAt ASC, d.id ASC, s.position ASC
`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.SanityExportRow{}
	for rows.Next() {
		var row internal.SanityExportRow
		if err := rows.Scan(&row.DocumentID, &row.Level, &row.Message); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, eris.New("failed to upsert email")
	}
	return *row, nil
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	var row internal.EmailRow
	err := d.conn.QueryRow(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM emails WHERE provider = ? AND messageId = ?
`, provider, messageID).Scan(
		&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

func inClause(ids []string) (string, []any) {
	args := make([]any, len(ids))
	marks := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		marks[i] = "?"
	}
	return strings.Join(marks, ","), args
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return eris.Wrap(ErrNotFound, what)
	}
	return nil
}
