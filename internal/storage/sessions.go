package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// EnsureSession creates a session row if none exists under id.
func (s *Store) EnsureSession(id string, now time.Time) error {
	ts := now.UTC().Format(timeLayout)
	_, err := s.db.Exec(
		"INSERT INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING",
		id, ts, ts,
	)
	return err
}

// ListSessions returns all sessions, most recently active first,
// without their messages.
func (s *Store) ListSessions() ([]Session, error) {
	rows, err := s.db.Query("SELECT id, created_at, updated_at FROM sessions ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// GetSession returns one session with all its messages in chronological
// order (insertion order breaks timestamp ties).
func (s *Store) GetSession(id string) (Session, error) {
	row := s.db.QueryRow("SELECT id, created_at, updated_at FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}

	rows, err := s.db.Query(`
		SELECT id, session_id, role, content, metadata, created_at
		FROM messages WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC`, id)
	if err != nil {
		return Session{}, fmt.Errorf("querying messages for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return Session{}, err
		}
		sess.Messages = append(sess.Messages, m)
	}
	return sess, rows.Err()
}

// DeleteSession removes a session and, via cascade, its messages.
// Returns ErrNotFound if the id does not exist.
func (s *Store) DeleteSession(id string) error {
	res, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
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

// AppendMessage inserts a message and bumps the session's updated_at.
// The session row must already exist.
func (s *Store) AppendMessage(m Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning message transaction: %w", err)
	}

	ts := m.CreatedAt.UTC().Format(timeLayout)
	if _, err := tx.Exec(`
		INSERT INTO messages (id, session_id, role, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.Role, m.Content, m.Metadata, ts,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("inserting message: %w", err)
	}

	if _, err := tx.Exec("UPDATE sessions SET updated_at = ? WHERE id = ?", ts, m.SessionID); err != nil {
		tx.Rollback()
		return fmt.Errorf("touching session %s: %w", m.SessionID, err)
	}

	return tx.Commit()
}

// RecentMessages returns the limit most recent messages of a session in
// ascending chronological order.
func (s *Store) RecentMessages(sessionID string, limit int) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, role, content, metadata, created_at FROM (
			SELECT id, session_id, role, content, metadata, created_at, rowid AS rid
			FROM messages WHERE session_id = ?
			ORDER BY created_at DESC, rid DESC
			LIMIT ?
		) ORDER BY created_at ASC, rid ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func scanSession(r rowScanner) (Session, error) {
	var sess Session
	var createdAt, updatedAt string
	if err := r.Scan(&sess.ID, &createdAt, &updatedAt); err != nil {
		return Session{}, err
	}
	var err error
	if sess.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return Session{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if sess.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return Session{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return sess, nil
}

func scanMessage(r rowScanner) (Message, error) {
	var m Message
	var createdAt string
	if err := r.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Metadata, &createdAt); err != nil {
		return Message{}, fmt.Errorf("scanning message: %w", err)
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Message{}, fmt.Errorf("parsing message created_at: %w", err)
	}
	m.CreatedAt = t
	return m, nil
}
