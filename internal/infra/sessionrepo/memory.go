package sessionrepo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
	"github.com/yanqian/health-assistant/internal/domain/reinforce"
	"github.com/yanqian/health-assistant/pkg/util"
)

// ErrMessageNotFound is returned when updating an unknown message.
var ErrMessageNotFound = errors.New("sessionrepo: message not found")

// MemoryStore keeps conversations in process memory.
type MemoryStore struct {
	mu            sync.RWMutex
	nextSessionID int64
	nextMessageID int64
	nextFeedback  int64
	sessions      map[int64]healthbot.Session
	messages      []healthbot.Message
	feedback      []healthbot.Feedback
	now           func() time.Time
}

// NewMemoryStore constructs the in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]healthbot.Session),
		now:      util.NowUTC,
	}
}

// CreateSession stores a new session.
func (s *MemoryStore) CreateSession(_ context.Context, userID, title string) (healthbot.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSessionID++
	session := healthbot.Session{ID: s.nextSessionID, UserID: userID, Title: title, CreatedAt: s.now()}
	s.sessions[session.ID] = session
	return session, nil
}

// GetSession looks up a session by id.
func (s *MemoryStore) GetSession(_ context.Context, sessionID int64) (healthbot.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok, nil
}

// ListSessions returns the user's sessions, newest first.
func (s *MemoryStore) ListSessions(_ context.Context, userID string) ([]healthbot.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]healthbot.Session, 0)
	for _, session := range s.sessions {
		if session.UserID == userID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Append stores a message and assigns its id and timestamp.
func (s *MemoryStore) Append(_ context.Context, msg healthbot.Message) (healthbot.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMessageID++
	msg.ID = s.nextMessageID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

// Read returns the latest limit messages of a session in chronological order.
// A non-positive limit returns the whole session.
func (s *MemoryStore) Read(_ context.Context, sessionID int64, limit int) ([]healthbot.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]healthbot.Message, 0)
	for _, msg := range s.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// GetMessage looks up a message by id.
func (s *MemoryStore) GetMessage(_ context.Context, messageID int64) (healthbot.Message, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexOf(messageID)
	if idx < 0 {
		return healthbot.Message{}, false, nil
	}
	return s.messages[idx], true, nil
}

// UpdateScore replaces the score of one message.
func (s *MemoryStore) UpdateScore(_ context.Context, messageID int64, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(messageID)
	if idx < 0 {
		return ErrMessageNotFound
	}
	s.messages[idx].Score = &score
	return nil
}

// EditMessage replaces the text of one message.
func (s *MemoryStore) EditMessage(_ context.Context, messageID int64, text string) (healthbot.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(messageID)
	if idx < 0 {
		return healthbot.Message{}, false, nil
	}
	s.messages[idx].Text = text
	return s.messages[idx], true, nil
}

// SaveFeedback records a rating.
func (s *MemoryStore) SaveFeedback(_ context.Context, fb healthbot.Feedback) (healthbot.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFeedback++
	fb.ID = s.nextFeedback
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = s.now()
	}
	s.feedback = append(s.feedback, fb)
	return fb, nil
}

// Stats summarizes stored conversations.
func (s *MemoryStore) Stats(_ context.Context) (healthbot.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := healthbot.Stats{TotalSessions: int64(len(s.sessions)), TotalMessages: int64(len(s.messages))}
	var (
		sum   float64
		count int
	)
	for _, msg := range s.messages {
		if msg.Score != nil {
			sum += *msg.Score
			count++
		}
	}
	if count > 0 {
		avg := sum / float64(count)
		stats.AvgScore = &avg
	}
	return stats, nil
}

// PositiveSamples pairs well scored answers with the preceding question.
func (s *MemoryStore) PositiveSamples(_ context.Context, minScore float64, limit int) ([]reinforce.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lastQuestion := make(map[int64]string)
	out := make([]reinforce.Sample, 0)
	for _, msg := range s.messages {
		switch msg.Role {
		case healthbot.RoleUser:
			lastQuestion[msg.SessionID] = msg.Text
		case healthbot.RoleAssistant:
			question, ok := lastQuestion[msg.SessionID]
			if !ok || msg.Score == nil || *msg.Score <= minScore {
				continue
			}
			out = append(out, reinforce.Sample{
				SessionID: msg.SessionID,
				MessageID: msg.ID,
				Question:  question,
				Answer:    msg.Text,
				Score:     *msg.Score,
			})
			if limit > 0 && len(out) == limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) indexOf(messageID int64) int {
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			return i
		}
	}
	return -1
}

var (
	_ healthbot.SessionStore = (*MemoryStore)(nil)
	_ reinforce.SampleSource = (*MemoryStore)(nil)
)
