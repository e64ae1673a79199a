package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Session represents one recorded tracking session.
type Session struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Frames    int        `json:"frames"`
}

// FrameRecord is one archived pipeline frame: the filtered hands and the
// performance sample, both serialized as JSON.
type FrameRecord struct {
	FrameNumber int             `json:"frame_number"`
	Hands       json.RawMessage `json:"hands"`
	Performance json.RawMessage `json:"performance"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SessionRepository provides CRUD operations for sessions and their frames.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a new session row.
func (r *SessionRepository) Create(id string, startedAt time.Time) error {
	_, err := r.db.Exec(`INSERT INTO sessions (id, started_at) VALUES (?, ?)`, id, startedAt)
	return err
}

// End marks a session as finished.
func (r *SessionRepository) End(id string, endedAt time.Time) error {
	_, err := r.db.Exec(`UPDATE sessions SET ended_at = ? WHERE id = ?`, endedAt, id)
	return err
}

// List returns all sessions, newest first.
func (r *SessionRepository) List() ([]Session, error) {
	rows, err := r.db.Query(
		`SELECT id, started_at, ended_at, frames FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var ended sql.NullTime
		if err := rows.Scan(&s.ID, &s.StartedAt, &ended, &s.Frames); err != nil {
			return nil, err
		}
		if ended.Valid {
			s.EndedAt = &ended.Time
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// AppendFrames inserts a batch of frames for a session in a single
// transaction and updates the session's frame count.
func (r *SessionRepository) AppendFrames(sessionID string, frames []FrameRecord) error {
	if len(frames) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO session_frames (session_id, frame_number, hands, performance) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range frames {
		if _, err := stmt.Exec(sessionID, f.FrameNumber, string(f.Hands), string(f.Performance)); err != nil {
			return err
		}
	}

	_, err = tx.Exec(`UPDATE sessions SET frames = frames + ? WHERE id = ?`, len(frames), sessionID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetFrames retrieves a page of frames for a session ordered by frame
// number. limit <= 0 means no limit.
func (r *SessionRepository) GetFrames(sessionID string, offset, limit int) ([]FrameRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats negative LIMIT as unlimited
	}

	rows, err := r.db.Query(
		`SELECT frame_number, hands, performance, created_at
		 FROM session_frames
		 WHERE session_id = ?
		 ORDER BY frame_number
		 LIMIT ? OFFSET ?`,
		sessionID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []FrameRecord
	for rows.Next() {
		var f FrameRecord
		var hands, perf string
		if err := rows.Scan(&f.FrameNumber, &hands, &perf, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Hands = json.RawMessage(hands)
		f.Performance = json.RawMessage(perf)
		frames = append(frames, f)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return frames, nil
}

// Delete removes a session and, via cascade, its frames.
func (r *SessionRepository) Delete(id string) error {
	_, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}
