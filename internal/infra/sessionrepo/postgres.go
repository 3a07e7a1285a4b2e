package sessionrepo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
	"github.com/yanqian/health-assistant/internal/domain/reinforce"
)

// PostgresStore persists conversations in Postgres. The schema lives in
// migrations/001_init.sql.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs the repository.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (r *PostgresStore) CreateSession(ctx context.Context, userID, title string) (healthbot.Session, error) {
	session := healthbot.Session{UserID: userID, Title: title}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chat_sessions (user_id, title)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, userID, title).Scan(&session.ID, &session.CreatedAt)
	if err != nil {
		return healthbot.Session{}, err
	}
	return session, nil
}

func (r *PostgresStore) GetSession(ctx context.Context, sessionID int64) (healthbot.Session, bool, error) {
	var session healthbot.Session
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, title, created_at
		FROM chat_sessions
		WHERE id = $1
	`, sessionID).Scan(&session.ID, &session.UserID, &session.Title, &session.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return healthbot.Session{}, false, nil
	}
	if err != nil {
		return healthbot.Session{}, false, err
	}
	return session, true, nil
}

func (r *PostgresStore) ListSessions(ctx context.Context, userID string) ([]healthbot.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, title, created_at
		FROM chat_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]healthbot.Session, 0)
	for rows.Next() {
		var session healthbot.Session
		if err := rows.Scan(&session.ID, &session.UserID, &session.Title, &session.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (r *PostgresStore) Append(ctx context.Context, msg healthbot.Message) (healthbot.Message, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (session_id, role, message, score, confidence, source)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, msg.SessionID, string(msg.Role), msg.Text, msg.Score, msg.Confidence, msg.Source).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return healthbot.Message{}, err
	}
	return msg, nil
}

func (r *PostgresStore) Read(ctx context.Context, sessionID int64, limit int) ([]healthbot.Message, error) {
	query := `
		SELECT id, session_id, role, message, score, confidence, source, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY id DESC
	`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]healthbot.Message, 0)
	for rows.Next() {
		msg, err := scanPostgresMessage(rows)
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

func (r *PostgresStore) GetMessage(ctx context.Context, messageID int64) (healthbot.Message, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, session_id, role, message, score, confidence, source, created_at
		FROM chat_messages
		WHERE id = $1
	`, messageID)
	msg, err := scanPostgresMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return healthbot.Message{}, false, nil
	}
	if err != nil {
		return healthbot.Message{}, false, err
	}
	return msg, true, nil
}

func (r *PostgresStore) UpdateScore(ctx context.Context, messageID int64, score float64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE chat_messages SET score = $1 WHERE id = $2`, score, messageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (r *PostgresStore) EditMessage(ctx context.Context, messageID int64, text string) (healthbot.Message, bool, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE chat_messages
		SET message = $1
		WHERE id = $2
		RETURNING id, session_id, role, message, score, confidence, source, created_at
	`, text, messageID)
	msg, err := scanPostgresMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return healthbot.Message{}, false, nil
	}
	if err != nil {
		return healthbot.Message{}, false, err
	}
	return msg, true, nil
}

func (r *PostgresStore) SaveFeedback(ctx context.Context, fb healthbot.Feedback) (healthbot.Feedback, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chat_feedback (user_id, message_id, rating, comment, reward)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, fb.UserID, fb.MessageID, fb.Rating, fb.Comment, fb.Reward).Scan(&fb.ID, &fb.CreatedAt)
	if err != nil {
		return healthbot.Feedback{}, err
	}
	return fb, nil
}

func (r *PostgresStore) Stats(ctx context.Context) (healthbot.Stats, error) {
	var stats healthbot.Stats
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM chat_sessions),
			(SELECT COUNT(*) FROM chat_messages),
			(SELECT AVG(score) FROM chat_messages WHERE score IS NOT NULL)
	`).Scan(&stats.TotalSessions, &stats.TotalMessages, &stats.AvgScore)
	if err != nil {
		return healthbot.Stats{}, err
	}
	return stats, nil
}

func (r *PostgresStore) PositiveSamples(ctx context.Context, minScore float64, limit int) ([]reinforce.Sample, error) {
	query := `
		SELECT a.session_id, a.id, q.message, a.message, a.score
		FROM chat_messages a
		JOIN LATERAL (
			SELECT u.message FROM chat_messages u
			WHERE u.session_id = a.session_id AND u.role = 'user' AND u.id < a.id
			ORDER BY u.id DESC
			LIMIT 1
		) q ON TRUE
		WHERE a.role = 'assistant' AND a.score > $1
		ORDER BY a.id
	`
	args := []any{minScore}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
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

func scanPostgresMessage(row pgx.Row) (healthbot.Message, error) {
	var (
		msg  healthbot.Message
		role string
	)
	if err := row.Scan(&msg.ID, &msg.SessionID, &role, &msg.Text, &msg.Score, &msg.Confidence, &msg.Source, &msg.CreatedAt); err != nil {
		return healthbot.Message{}, err
	}
	msg.Role = healthbot.Role(role)
	return msg, nil
}

var (
	_ healthbot.SessionStore = (*PostgresStore)(nil)
	_ reinforce.SampleSource = (*PostgresStore)(nil)
)
