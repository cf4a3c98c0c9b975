package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle of one session as seen from outside.
type SessionState string

const (
	SessionRunning   SessionState = "running"
	SessionCompleted SessionState = "completed"
	SessionError     SessionState = "error"
)

// Session is one in-flight or finished autonomous run. Listeners are a
// growable set with safe concurrent removal; the run itself never owns them
// and keeps going with zero attached.
type Session struct {
	ID        string
	StartedAt time.Time

	mu        sync.Mutex
	state     SessionState
	phase     Phase
	listeners map[int]chan ProgressUpdate
	nextID    int
	updates   []ProgressUpdate
	report    *Report
	err       error
	cancel    context.CancelFunc
	done      chan struct{}
}

func (s *Session) publish(u ProgressUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = u.Phase
	s.updates = append(s.updates, u)
	for _, ch := range s.listeners {
		// Never block the pipeline on a slow listener; it catches up from
		// the recorded updates or misses the intermediate tick.
		select {
		case ch <- u:
		default:
		}
	}
}

// Snapshot returns the session's current state, final report and error.
func (s *Session) Snapshot() (SessionState, Phase, *Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.phase, s.report, s.err
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Service owns the session registry. It is the only component that exposes
// sessions externally; sessions do not share mutable state with each other.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	newOrchestrator func(cfg Config, sessionID string, progress ProgressFunc) *Orchestrator
}

// NewService builds a session service. factory creates the orchestrator for
// each session; tests inject stubs through it.
func NewService(factory func(cfg Config, sessionID string, progress ProgressFunc) *Orchestrator) *Service {
	return &Service{
		sessions:        make(map[string]*Session),
		newOrchestrator: factory,
	}
}

// StartSession launches a run and returns its session id immediately. The
// run proceeds in the background until it completes, errors or ctx is
// cancelled.
func (s *Service) StartSession(ctx context.Context, cfg Config) (string, error) {
	if cfg.TargetURL == "" {
		return "", fmt.Errorf("target URL is required")
	}

	sessionID := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	sess := &Session{
		ID:        sessionID,
		StartedAt: time.Now(),
		state:     SessionRunning,
		phase:     PhaseIdle,
		listeners: make(map[int]chan ProgressUpdate),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	s.sessions[sessionID] = sess
	s.mu.Unlock()

	orch := s.newOrchestrator(cfg, sessionID, sess.publish)

	go func() {
		defer close(sess.done)
		report, err := orch.Run(runCtx)

		sess.mu.Lock()
		defer sess.mu.Unlock()
		if err != nil {
			sess.state = SessionError
			sess.phase = PhaseError
			sess.err = err
			slog.Error("session ended in error", "session_id", sessionID, "error", err)
		} else {
			sess.state = SessionCompleted
			sess.phase = PhaseCompleted
			sess.report = report
		}
	}()

	return sessionID, nil
}

// Session looks up a session by id.
func (s *Service) Session(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return sess, nil
}

// Listen attaches a progress listener to a session. The returned channel
// first replays updates already delivered, then streams live ones. The
// remove function detaches at any time without affecting the run.
func (s *Service) Listen(id string) (<-chan ProgressUpdate, func(), error) {
	sess, err := s.Session(id)
	if err != nil {
		return nil, nil, err
	}

	sess.mu.Lock()
	ch := make(chan ProgressUpdate, 256)
	for _, u := range sess.updates {
		select {
		case ch <- u:
		default:
		}
	}
	listenerID := sess.nextID
	sess.nextID++
	sess.listeners[listenerID] = ch
	sess.mu.Unlock()

	remove := func() {
		sess.mu.Lock()
		if _, ok := sess.listeners[listenerID]; ok {
			delete(sess.listeners, listenerID)
			close(ch)
		}
		sess.mu.Unlock()
	}
	return ch, remove, nil
}

// Cancel stops a running session. The pipeline observes the cancellation at
// its next phase or step boundary and the session terminates in the error
// state.
func (s *Service) Cancel(id string) error {
	sess, err := s.Session(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	cancel := sess.cancel
	sess.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}
