package sessionrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
	"github.com/yanqian/health-assistant/internal/domain/reinforce"
	"github.com/yanqian/health-assistant/pkg/util"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    TEXT NOT NULL,
	title      TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER NOT NULL REFERENCES chat_sessions(id),
	role       TEXT NOT NULL,
	message    TEXT NOT NULL,
	score      REAL,
	confidence REAL,
	source     TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, id);

CREATE TABLE IF NOT EXISTS chat_feedback (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    TEXT NOT NULL,
	message_id INTEGER NOT NULL REFERENCES chat_messages(id),
	rating     REAL NOT NULL,
	comment    TEXT,
	reward     REAL NOT NULL,
	created_at TEXT NOT NULL
);
`

// SQLiteStore persists conversations in a single SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens the database at path and creates the schema.
// Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db, now: util.NowUTC}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, userID, title string) (healthbot.Session, error) {
	session := healthbot.Session{UserID: userID, Title: title, CreatedAt: s.now()}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (user_id, title, created_at) VALUES (?, ?, ?)`,
		userID, title, formatTime(session.CreatedAt),
	)
	if err != nil {
		return healthbot.Session{}, err
	}
	if session.ID, err = res.LastInsertId(); err != nil {
		return healthbot.Session{}, err
	}
	return session, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID int64) (healthbot.Session, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at FROM chat_sessions WHERE id = ?`, sessionID)
	session, err := scanSQLiteSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return healthbot.Session{}, false, nil
	}
	if err != nil {
		return healthbot.Session{}, false, err
	}
	return session, true, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, userID string) ([]healthbot.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, created_at
		FROM chat_sessions
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]healthbot.Session, 0)
	for rows.Next() {
		session, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) Append(ctx context.Context, msg healthbot.Message) (healthbot.Message, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (session_id, role, message, score, confidence, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.SessionID, string(msg.Role), msg.Text, msg.Score, msg.Confidence, msg.Source, formatTime(msg.CreatedAt))
	if err != nil {
		return healthbot.Message{}, err
	}
	if msg.ID, err = res.LastInsertId(); err != nil {
		return healthbot.Message{}, err
	}
	return msg, nil
}

func (s *SQLiteStore) Read(ctx context.Context, sessionID int64, limit int) ([]healthbot.Message, error) {
	query := `
		SELECT id, session_id, role, message, score, confidence, source, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY id DESC
	`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]healthbot.Message, 0)
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverse(messages)
	return messages, nil
}

func (s *SQLiteStore) GetMessage(ctx context.Context, messageID int64) (healthbot.Message, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, role, message, score, confidence, source, created_at
		FROM chat_messages
		WHERE id = ?
	`, messageID)
	msg, err := scanSQLiteMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return healthbot.Message{}, false, nil
	}
	if err != nil {
		return healthbot.Message{}, false, err
	}
	return msg, true, nil
}

func (s *SQLiteStore) UpdateScore(ctx context.Context, messageID int64, score float64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE chat_messages SET score = ? WHERE id = ?`, score, messageID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (s *SQLiteStore) EditMessage(ctx context.Context, messageID int64, text string) (healthbot.Message, bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE chat_messages SET message = ? WHERE id = ?`, text, messageID)
	if err != nil {
		return healthbot.Message{}, false, err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return healthbot.Message{}, false, err
	}
	return s.GetMessage(ctx, messageID)
}

func (s *SQLiteStore) SaveFeedback(ctx context.Context, fb healthbot.Feedback) (healthbot.Feedback, error) {
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_feedback (user_id, message_id, rating, comment, reward, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, fb.UserID, fb.MessageID, fb.Rating, fb.Comment, fb.Reward, formatTime(fb.CreatedAt))
	if err != nil {
		return healthbot.Feedback{}, err
	}
	if fb.ID, err = res.LastInsertId(); err != nil {
		return healthbot.Feedback{}, err
	}
	return fb, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (healthbot.Stats, error) {
	var stats healthbot.Stats
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM chat_sessions),
			(SELECT COUNT(*) FROM chat_messages),
			(SELECT AVG(score) FROM chat_messages WHERE score IS NOT NULL)
	`)
	var avg sql.NullFloat64
	if err := row.Scan(&stats.TotalSessions, &stats.TotalMessages, &avg); err != nil {
		return healthbot.Stats{}, err
	}
	if avg.Valid {
		stats.AvgScore = &avg.Float64
	}
	return stats, nil
}

func (s *SQLiteStore) PositiveSamples(ctx context.Context, minScore float64, limit int) ([]reinforce.Sample, error) {
	query := `
		SELECT session_id, id, question, message, score FROM (
			SELECT a.session_id, a.id, a.message, a.score,
				(SELECT u.message FROM chat_messages u
				 WHERE u.session_id = a.session_id AND u.role = 'user' AND u.id < a.id
				 ORDER BY u.id DESC LIMIT 1) AS question
			FROM chat_messages a
			WHERE a.role = 'assistant' AND a.score > ?
		)
		WHERE question IS NOT NULL
		ORDER BY id
	`
	args := []any{minScore}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples := make([]reinforce.Sample, 0)
	for rows.Next() {
		var sample reinforce.Sample
		if err := rows.Scan(&sample.SessionID, &sample.MessageID, &sample.Question, &sample.Answer, &sample.Score); err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSession(row rowScanner) (healthbot.Session, error) {
	var (
		session healthbot.Session
		created string
	)
	if err := row.Scan(&session.ID, &session.UserID, &session.Title, &created); err != nil {
		return healthbot.Session{}, err
	}
	ts, err := parseTime(created)
	if err != nil {
		return healthbot.Session{}, err
	}
	session.CreatedAt = ts
	return session, nil
}

func scanSQLiteMessage(row rowScanner) (healthbot.Message, error) {
	var (
		msg     healthbot.Message
		role    string
		created string
	)
	if err := row.Scan(&msg.ID, &msg.SessionID, &role, &msg.Text, &msg.Score, &msg.Confidence, &msg.Source, &created); err != nil {
		return healthbot.Message{}, err
	}
	ts, err := parseTime(created)
	if err != nil {
		return healthbot.Message{}, err
	}
	msg.Role = healthbot.Role(role)
	msg.CreatedAt = ts
	return msg, nil
}

// timeLayout keeps a fixed fraction width so stored values sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return ts, nil
}

func reverse(messages []healthbot.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

var (
	_ healthbot.SessionStore = (*SQLiteStore)(nil)
	_ reinforce.SampleSource = (*SQLiteStore)(nil)
)
