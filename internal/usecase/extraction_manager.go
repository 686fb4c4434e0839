package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aidecameron/gifcut/internal/domain/entity"
	"github.com/aidecameron/gifcut/internal/extract"
	"go.uber.org/zap"
)

// ExtractionManager routes control messages to the extraction job
// currently running in this process. One extraction runs at a time; the
// full-frame and preview controllers pause and cancel together through
// here, while each keeps its own flags.
type ExtractionManager struct {
	mu       sync.Mutex
	full     *extract.Controller
	previews *extract.Controller
	logger   *zap.Logger
}

func NewExtractionManager(logger *zap.Logger) *ExtractionManager {
	return &ExtractionManager{logger: logger}
}

// Begin claims the manager for one extraction job.
func (m *ExtractionManager) Begin(full, previews *extract.Controller) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full != nil || m.previews != nil {
		return fmt.Errorf("%w: an extraction job is active", entity.ErrAlreadyRunning)
	}
	m.full = full
	m.previews = previews
	return nil
}

// Finish releases the manager once the job's controllers have stopped.
func (m *ExtractionManager) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.full = nil
	m.previews = nil
}

func (m *ExtractionManager) controllers() []*extract.Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cs []*extract.Controller
	if m.full != nil {
		cs = append(cs, m.full)
	}
	if m.previews != nil {
		cs = append(cs, m.previews)
	}
	return cs
}

// HandleControl is the consumer handler for the extraction control queue.
// Unknown actions and messages with no active job are logged and acked;
// redelivering them cannot help.
func (m *ExtractionManager) HandleControl(ctx context.Context, body []byte) error {
	var msg entity.ExtractControlMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		m.logger.Warn("bad control message", zap.Error(err), zap.ByteString("body", body))
		return nil
	}

	cs := m.controllers()
	if len(cs) == 0 {
		m.logger.Info("control message with no active extraction", zap.String("action", msg.Action))
		return nil
	}

	switch msg.Action {
	case "pause":
		for _, c := range cs {
			c.Pause()
		}
	case "resume":
		for _, c := range cs {
			c.Resume()
		}
	case "cancel":
		// Cancel blocks until each worker has exited, so the ack below
		// means the job has actually stopped.
		for _, c := range cs {
			c.Cancel()
		}
	default:
		m.logger.Warn("unknown control action", zap.String("action", msg.Action))
		return nil
	}

	m.logger.Info("control action applied", zap.String("action", msg.Action))
	return nil
}
