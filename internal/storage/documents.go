package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// SaveDocument inserts a document and its chunks in one transaction.
func (s *Store) SaveDocument(doc Document) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning document transaction: %w", err)
	}

	indexed := 0
	if doc.Indexed {
		indexed = 1
	}
	if _, err := tx.Exec(`
		INSERT INTO documents (id, filename, original_name, filepath, filesize, content, indexed, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.OriginalName, doc.Filepath, doc.Filesize,
		doc.Content, indexed, doc.UploadedAt.UTC().Format(timeLayout),
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("inserting document %s: %w", doc.ID, err)
	}

	stmt, err := tx.Prepare("INSERT INTO chunks (id, document_id, chunk_index, content) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range doc.Chunks {
		if _, err := stmt.Exec(c.ID, doc.ID, c.Index, c.Content); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting chunk %d of document %s: %w", c.Index, doc.ID, err)
		}
	}

	return tx.Commit()
}

// ListDocuments returns all documents newest first, with chunk counts
// but without content or chunk bodies.
func (s *Store) ListDocuments() ([]Document, error) {
	rows, err := s.db.Query(`
		SELECT d.id, d.filename, d.original_name, d.filepath, d.filesize, d.indexed, d.uploaded_at,
		       (SELECT COUNT(*) FROM chunks c WHERE c.document_id = d.id)
		FROM documents d
		ORDER BY d.uploaded_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// GetDocument returns one document with its chunks in ordinal order.
func (s *Store) GetDocument(id string) (Document, error) {
	row := s.db.QueryRow(`
		SELECT d.id, d.filename, d.original_name, d.filepath, d.filesize, d.indexed, d.uploaded_at,
		       (SELECT COUNT(*) FROM chunks c WHERE c.document_id = d.id)
		FROM documents d WHERE d.id = ?`, id)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}

	rows, err := s.db.Query(
		"SELECT id, document_id, chunk_index, content FROM chunks WHERE document_id = ? ORDER BY chunk_index ASC", id)
	if err != nil {
		return Document{}, fmt.Errorf("querying chunks for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content); err != nil {
			return Document{}, fmt.Errorf("scanning chunk: %w", err)
		}
		doc.Chunks = append(doc.Chunks, c)
	}
	return doc, rows.Err()
}

// DeleteDocument removes a document; its chunks go with it via the
// foreign-key cascade. Returns ErrNotFound if the id does not exist.
func (s *Store) DeleteDocument(id string) error {
	res, err := s.db.Exec("DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (Document, error) {
	var doc Document
	var indexed int
	var uploadedAt string
	if err := r.Scan(&doc.ID, &doc.Filename, &doc.OriginalName, &doc.Filepath,
		&doc.Filesize, &indexed, &uploadedAt, &doc.ChunkCount); err != nil {
		return Document{}, err
	}
	doc.Indexed = indexed != 0
	t, err := time.Parse(timeLayout, uploadedAt)
	if err != nil {
		return Document{}, fmt.Errorf("parsing uploaded_at: %w", err)
	}
	doc.UploadedAt = t
	return doc, nil
}
