package session

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MegaGrindStone/rag-web-ui/internal/models"
	"github.com/google/uuid"
)

// Session owns the state of one conversation: the ordered message log, the pending request flag, the
// document scope and the upload status. Every method is a single atomic transition, so a Session is
// safe for concurrent use by the HTTP handlers and the background exchange that resolves a placeholder.
type Session struct {
	mu sync.Mutex

	messages []models.Message
	// pendingID is the ID of the unresolved placeholder, empty when no request is outstanding.
	pendingID string

	scope string
	// scopeStart is the index of the first message appended after the last scope change.
	scopeStart int

	uploadStatus models.UploadStatus
	uploading    bool

	logger *slog.Logger
}

// New creates an empty Session in global scope.
func New(logger *slog.Logger) *Session {
	return &Session{
		logger: logger.With(slog.String("module", "session")),
	}
}

// AppendUser appends a user message and returns it.
func (s *Session) AppendUser(text string) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.append(models.RoleUser, text, false, false)
}

// AppendPlaceholder appends an unresolved assistant placeholder and returns it. The returned ID is the
// correlation token expected by Resolve. At most one placeholder may be pending; appending another is a
// programming error and is logged.
func (s *Session) AppendPlaceholder() models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendPlaceholder()
}

// AppendSystem appends a system notice and returns it.
func (s *Session) AppendSystem(text string) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.append(models.RoleAssistant, text, false, true)
}

// Resolve replaces the content of the placeholder identified by id. Resolving an unknown id, or a
// message that is not a pending placeholder, is a programming error: it is logged, nothing is
// modified, and false is returned.
func (s *Session) Resolve(id, text string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.resolve(id, text)
}

// ResolveLastAssistant resolves the most recently appended message, which must be a pending assistant
// placeholder. Otherwise nothing is modified and false is returned.
func (s *Session) ResolveLastAssistant(text string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) == 0 {
		s.logger.Error("Resolve requested on empty conversation")
		return models.Message{}, false
	}
	return s.resolve(s.messages[len(s.messages)-1].ID, text)
}

// Messages returns a snapshot of the message log.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.messages)
}

// Pending reports whether an answer request is outstanding.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pendingID != ""
}

// SetScope switches the session to single-document mode for docID. An empty docID is equivalent to
// ClearScope.
func (s *Session) SetScope(docID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setScope(docID)
}

// ClearScope switches the session back to the global corpus. Messages are kept.
func (s *Session) ClearScope() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setScope("")
}

// CurrentScope returns the active document ID, or an empty string in global mode.
func (s *Session) CurrentScope() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.scope
}

// UploadStatus returns the current upload phase.
func (s *Session) UploadStatus() models.UploadStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.uploadStatus
}

// Uploading reports whether an upload is in flight.
func (s *Session) Uploading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.uploading
}

// admit performs the admission check and the optimistic append of an exchange in one step. The
// returned history is the log as it was before the appends.
func (s *Session) admit(question string, policy HistoryPolicy) (admission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingID != "" {
		return admission{}, ErrRequestPending
	}

	history := s.messages
	if policy == HistoryScope {
		history = s.messages[s.scopeStart:]
	}

	a := admission{
		history: slices.Clone(history),
		scope:   s.scope,
	}
	a.user = s.append(models.RoleUser, question, false, false)
	a.placeholder = s.appendPlaceholder()
	return a, nil
}

// release clears the pending flag if it still belongs to the placeholder id.
func (s *Session) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingID == id {
		s.pendingID = ""
	}
}

// beginUpload marks an upload as in flight, failing if one already is.
func (s *Session) beginUpload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.uploading {
		return ErrUploadInProgress
	}
	s.uploading = true
	s.uploadStatus = models.UploadStatusUploading
	return nil
}

// finishUpload ends the in-flight upload. On success the scope switches to docID and notice is
// appended; the notice is returned.
func (s *Session) finishUpload(status models.UploadStatus, docID, notice string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.uploading = false
	s.uploadStatus = status
	if docID == "" {
		return models.Message{}, false
	}
	s.setScope(docID)
	return s.append(models.RoleAssistant, notice, false, true), true
}

func (s *Session) append(role models.Role, text string, pending, notice bool) models.Message {
	msg := models.Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   text,
		Pending:   pending,
		Notice:    notice,
		Timestamp: time.Now(),
	}
	s.messages = append(s.messages, msg)
	return msg
}

func (s *Session) appendPlaceholder() models.Message {
	if s.pendingID != "" {
		s.logger.Error("Placeholder appended while another one is pending",
			slog.String("pendingID", s.pendingID))
	}
	msg := s.append(models.RoleAssistant, models.PlaceholderContent, true, false)
	s.pendingID = msg.ID
	return msg
}

func (s *Session) resolve(id, text string) (models.Message, bool) {
	idx := slices.IndexFunc(s.messages, func(m models.Message) bool { return m.ID == id })
	if idx == -1 {
		s.logger.Error("Placeholder to resolve not found", slog.String("messageID", id))
		return models.Message{}, false
	}

	msg := s.messages[idx]
	if msg.Role != models.RoleAssistant || !msg.Pending {
		s.logger.Error("Message to resolve is not a pending placeholder",
			slog.String("messageID", id),
			slog.String("role", string(msg.Role)))
		return models.Message{}, false
	}

	msg.Content = text
	msg.Pending = false
	s.messages[idx] = msg
	if s.pendingID == id {
		s.pendingID = ""
	}
	return msg, true
}

func (s *Session) setScope(docID string) {
	s.scope = docID
	s.scopeStart = len(s.messages)
}

type admission struct {
	history     []models.Message
	scope       string
	user        models.Message
	placeholder models.Message
}
