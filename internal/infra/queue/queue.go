package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yanqian/health-assistant/internal/domain/reinforce"
)

// ErrInvalidPayload is returned when a job payload is not a JSON object.
var ErrInvalidPayload = errors.New("queue: job payload must encode to a JSON object")

// Handler executes a delivered job.
type Handler func(ctx context.Context, name string, payload map[string]any)

// HandlerQueue is a job queue whose deliveries can be consumed in process.
type HandlerQueue interface {
	reinforce.JobQueue
	SetHandler(handler Handler)
}

type jobEnvelope struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload"`
}

// payloadObject converts a payload into the object carried by the envelope.
// Maps pass through; structs are converted through their JSON form.
func payloadObject(payload any) (map[string]any, error) {
	switch typed := payload.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return typed, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	var object map[string]any
	if err := json.Unmarshal(raw, &object); err != nil || object == nil {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidPayload, payload)
	}
	return object, nil
}

func encodeEnvelope(name string, payload any) ([]byte, error) {
	object, err := payloadObject(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jobEnvelope{Name: name, Payload: object})
}

func decodeEnvelope(raw []byte) (jobEnvelope, error) {
	var job jobEnvelope
	err := json.Unmarshal(raw, &job)
	return job, err
}
