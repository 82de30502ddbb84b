package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/wakeru/internal/models"
)

// MemoryDSN keeps the session in process memory.
const MemoryDSN = ":memory:"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dbPath (MemoryDSN when empty) and starts from an empty session.
// A file path only exists for inspecting a running session; its previous contents are discarded.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = MemoryDSN
	}
	if dbPath != MemoryDSN {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if dbPath != MemoryDSN {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.Reset(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		filename TEXT NOT NULL,
		source_path TEXT NOT NULL DEFAULT '',
		raw_text TEXT NOT NULL,
		embedding BLOB,
		cluster_id INTEGER,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_source_path ON documents(source_path);

	CREATE TABLE IF NOT EXISTS entities (
		document_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		text TEXT NOT NULL,
		label TEXT NOT NULL,
		PRIMARY KEY (document_id, position),
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_entities_label ON entities(label);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateDocument inserts a document and its entities. Seq and CreatedAt are set on doc.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *models.DocumentRecord) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, filename, source_path, raw_text, created_at) VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.SourcePath, doc.RawText, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	if doc.Seq, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read document sequence: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entities (document_id, position, text, label) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()
	for i, e := range doc.Entities {
		if _, err := stmt.ExecContext(ctx, doc.ID, i, e.Text, e.Label); err != nil {
			return fmt.Errorf("failed to insert entity: %w", err)
		}
	}
	return tx.Commit()
}

const selectDocument = `SELECT id, seq, filename, source_path, raw_text, embedding, cluster_id, created_at FROM documents`

// GetDocument returns a document with its entities.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*models.DocumentRecord, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx, selectDocument+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	entities, err := s.entitiesByDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if es, ok := entities[id]; ok {
		doc.Entities = es
	}
	return doc, nil
}

// ListDocuments returns all documents in upload order.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]*models.DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectDocument+` ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []*models.DocumentRecord
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	entities, err := s.entitiesByDocument(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if es, ok := entities[doc.ID]; ok {
			doc.Entities = es
		}
	}
	return docs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*models.DocumentRecord, error) {
	var doc models.DocumentRecord
	var blob []byte
	var clusterID sql.NullInt64
	if err := row.Scan(&doc.ID, &doc.Seq, &doc.Filename, &doc.SourcePath, &doc.RawText, &blob, &clusterID, &doc.CreatedAt); err != nil {
		return nil, err
	}
	emb, err := decodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", doc.ID, err)
	}
	doc.Embedding = emb
	if clusterID.Valid {
		id := int(clusterID.Int64)
		doc.ClusterID = &id
	}
	doc.Entities = []models.NormalizedEntity{}
	return &doc, nil
}

// entitiesByDocument loads entities in first-seen order, for one document or all when docID is "".
func (s *SQLiteStore) entitiesByDocument(ctx context.Context, docID string) (map[string][]models.NormalizedEntity, error) {
	query := `SELECT document_id, text, label FROM entities`
	var args []interface{}
	if docID != "" {
		query += ` WHERE document_id = ?`
		args = append(args, docID)
	}
	query += ` ORDER BY document_id, position`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]models.NormalizedEntity)
	for rows.Next() {
		var id string
		var e models.NormalizedEntity
		if err := rows.Scan(&id, &e.Text, &e.Label); err != nil {
			return nil, err
		}
		out[id] = append(out[id], e)
	}
	return out, rows.Err()
}

// DeleteDocument removes a document and its entities.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE document_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}

// DeleteBySource removes every document added from sourcePath and returns their ids.
func (s *SQLiteStore) DeleteBySource(ctx context.Context, sourcePath string) ([]string, error) {
	if sourcePath == "" {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM documents WHERE source_path = ? ORDER BY seq`, sourcePath)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE document_id = ?`, id); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE source_path = ?`, sourcePath); err != nil {
		return nil, err
	}
	return ids, tx.Commit()
}

// Reset removes every document.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entities; DELETE FROM documents;`); err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}
	return nil
}

// SaveClustering stores every result in one transaction.
func (s *SQLiteStore) SaveClustering(ctx context.Context, results []ClusterResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `UPDATE documents SET embedding = ?, cluster_id = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()
	for _, r := range results {
		res, err := stmt.ExecContext(ctx, encodeVector(r.Embedding), r.ClusterID, r.DocumentID)
		if err != nil {
			return fmt.Errorf("failed to store cluster for %s: %w", r.DocumentID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, r.DocumentID)
		}
	}
	return tx.Commit()
}

// ClearClustering drops stored embeddings and cluster ids.
func (s *SQLiteStore) ClearClustering(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE documents SET embedding = NULL, cluster_id = NULL`)
	return err
}

// LabelCounts counts entities per label.
func (s *SQLiteStore) LabelCounts(ctx context.Context, docID string) (models.LabelCount, error) {
	query := `SELECT label, COUNT(*) FROM entities`
	var args []interface{}
	if docID != "" {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, docID).Scan(&exists)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, docID)
		}
		if err != nil {
			return nil, err
		}
		query += ` WHERE document_id = ?`
		args = append(args, docID)
	}
	query += ` GROUP BY label`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(models.LabelCount)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		counts[label] = n
	}
	return counts, rows.Err()
}

// EntityRows returns the flattened (document, entity, label) table in upload then first-seen order.
func (s *SQLiteStore) EntityRows(ctx context.Context) ([]models.EntityRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.filename, e.text, e.label
		FROM entities e JOIN documents d ON d.id = e.document_id
		ORDER BY d.seq, e.position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.EntityRow{}
	for rows.Next() {
		var r models.EntityRow
		if err := rows.Scan(&r.DocumentID, &r.Filename, &r.Text, &r.Label); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountDocuments returns the number of documents in the session.
func (s *SQLiteStore) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
