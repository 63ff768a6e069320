// internal/entry/service.go
package entry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ian-Chin/iunami-ai-extension/internal/cache"
	"github.com/Ian-Chin/iunami-ai-extension/internal/core"
	"github.com/Ian-Chin/iunami-ai-extension/internal/domain"
	"github.com/Ian-Chin/iunami-ai-extension/internal/logger"
	"github.com/Ian-Chin/iunami-ai-extension/internal/notion"
	"github.com/Ian-Chin/iunami-ai-extension/internal/storage"
)

var (
	customLog = logger.NewLogger()
)

// Notion is the part of the Notion client the entry flow uses.
type Notion interface {
	GetDatabase(ctx context.Context, token, databaseID string) (*notion.Database, error)
	CreatePage(ctx context.Context, token string, req core.CreatePageRequest) (*notion.CreatedPage, error)
}

// Extractor turns free text into values for a schema.
type Extractor interface {
	Extract(ctx context.Context, schemas []core.FieldSchema, text string, now time.Time) (core.ValueMap, error)
}

// Options configures a Service.
type Options struct {
	ParseTimeout     time.Duration
	InteractionLimit int
	// Now is the clock handed to the prompt; defaults to time.Now.
	Now func() time.Time
}

// Service runs entry flows for connected sessions.
type Service struct {
	metaDB       *sql.DB
	notion       Notion
	extractor    Extractor
	schemas      *cache.SchemaCache
	interactions *registry
	parseTimeout time.Duration
	now          func() time.Time
}

// NewService creates a Service.
func NewService(metaDB *sql.DB, notionAPI Notion, extractor Extractor, schemas *cache.SchemaCache, opts Options) (*Service, error) {
	interactions, err := newRegistry(opts.InteractionLimit)
	if err != nil {
		return nil, err
	}
	if opts.ParseTimeout <= 0 {
		opts.ParseTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		metaDB:       metaDB,
		notion:       notionAPI,
		extractor:    extractor,
		schemas:      schemas,
		interactions: interactions,
		parseTimeout: opts.ParseTimeout,
		now:          opts.Now,
	}, nil
}

// Begin opens an interaction on a dashboard database. The manual path
// loads the schema right away and lands in form; the AI path waits in
// idle for text.
func (s *Service) Begin(ctx context.Context, sess *domain.Session, dashboardID, databaseID string, mode Mode) (Snapshot, error) {
	dashboard, err := storage.FindDashboard(ctx, s.metaDB, sess.SessionID, dashboardID)
	if err != nil {
		return Snapshot{}, err
	}
	databaseID = core.CanonicalID(databaseID)
	if _, ok := dashboard.FindDatabase(databaseID); !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrDatabaseNotListed, databaseID)
	}

	it := newInteraction(uuid.NewString(), sess.SessionID, dashboardID, databaseID, mode)
	it.revision = dashboard.Revision
	s.interactions.add(it)
	customLog.Printf("Entry: began %s interaction %s on database %s", mode, it.ID, databaseID)

	if mode != ModeManual {
		return it.Snapshot(), nil
	}

	it.mu.Lock()
	_ = it.transitionLocked(StateConnecting)
	it.mu.Unlock()

	result, err := s.loadSchema(ctx, sess, it)

	it.mu.Lock()
	defer it.mu.Unlock()
	if err != nil {
		_ = it.transitionLocked(StateIdle)
		return Snapshot{}, s.schemaError(err, it.state, "")
	}
	it.schemas = result.Schemas
	it.unsupported = result.Unsupported
	if err := it.transitionLocked(StateForm); err != nil {
		return Snapshot{}, err
	}
	return it.snapshotLocked(), nil
}

// Get returns the current snapshot of an interaction.
func (s *Service) Get(sessionID, interactionID string) (Snapshot, error) {
	it, err := s.interactions.get(sessionID, interactionID)
	if err != nil {
		return Snapshot{}, err
	}
	return it.Snapshot(), nil
}

// Parse runs the AI path: schema fetch then model call, under one
// deadline. On any failure the interaction returns to idle and the text
// is echoed back in the error.
func (s *Service) Parse(ctx context.Context, sess *domain.Session, interactionID, text string, loc *time.Location) (Snapshot, error) {
	it, err := s.interactions.get(sess.SessionID, interactionID)
	if err != nil {
		return Snapshot{}, err
	}
	if it.Mode != ModeAI {
		return Snapshot{}, fmt.Errorf("%w: manual entries are not parsed", ErrInvalidTransition)
	}

	it.mu.Lock()
	if it.state == StateConnecting || it.state == StateThinking {
		it.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: a parse is already running", ErrInvalidTransition)
	}
	if err := it.transitionLocked(StateConnecting); err != nil {
		it.mu.Unlock()
		return Snapshot{}, err
	}
	it.abandonLocked()
	attempt := it.attempt
	parseCtx, cancel := context.WithTimeout(ctx, s.parseTimeout)
	it.cancel = cancel
	it.text = text
	it.mu.Unlock()
	defer cancel()

	result, err := s.loadSchema(parseCtx, sess, it)
	if err != nil {
		return Snapshot{}, s.failParse(parseCtx, it, attempt, text, s.schemaError(err, StateIdle, text))
	}

	it.mu.Lock()
	if it.attempt != attempt {
		it.mu.Unlock()
		return Snapshot{}, canceledError(text)
	}
	it.schemas = result.Schemas
	it.unsupported = result.Unsupported
	_ = it.transitionLocked(StateThinking)
	it.mu.Unlock()

	values, err := s.extractor.Extract(parseCtx, result.Schemas, text, s.promptTime(loc))
	if err != nil {
		return Snapshot{}, s.failParse(parseCtx, it, attempt, text, &FlowError{
			Kind: ErrParseFailed, Message: MsgParseFailed, State: StateIdle, Text: text, Err: err,
		})
	}

	it.mu.Lock()
	defer it.mu.Unlock()
	if it.attempt != attempt {
		return Snapshot{}, canceledError(text)
	}
	it.values = values
	it.warnings = core.UnknownOptions(values, result.Schemas)
	it.cancel = nil
	_ = it.transitionLocked(StatePreview)
	customLog.Printf("Entry: interaction %s parsed %d values", it.ID, len(values))
	return it.snapshotLocked(), nil
}

// promptTime is the clock reading the model sees, in the user's zone when
// the request named one.
func (s *Service) promptTime(loc *time.Location) time.Time {
	now := s.now()
	if loc != nil {
		now = now.In(loc)
	}
	return now
}

// failParse returns the interaction to idle and picks the error to report.
// A deadline beats whatever the failing call said.
func (s *Service) failParse(parseCtx context.Context, it *Interaction, attempt int, text string, flowErr *FlowError) error {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.attempt != attempt {
		return canceledError(text)
	}
	it.cancel = nil
	it.state = StateIdle
	it.updatedAt = time.Now()

	if errors.Is(parseCtx.Err(), context.DeadlineExceeded) {
		customLog.Warnf("Entry: interaction %s timed out after %s", it.ID, s.parseTimeout)
		return &FlowError{Kind: ErrTimedOut, Message: MsgTimedOut, State: StateIdle, Text: text, Err: parseCtx.Err()}
	}
	customLog.Warnf("Entry: interaction %s failed: %v", it.ID, flowErr)
	return flowErr
}

// Submit validates and writes the values. Values nil means the stored
// preview values. A failed write keeps the values and returns to preview
// or form.
func (s *Service) Submit(ctx context.Context, sess *domain.Session, interactionID string, values core.ValueMap) (*notion.CreatedPage, error) {
	it, err := s.interactions.get(sess.SessionID, interactionID)
	if err != nil {
		return nil, err
	}

	it.mu.Lock()
	if it.state == StateSubmitting {
		it.mu.Unlock()
		return nil, ErrSubmissionInProgress
	}
	if it.state != StatePreview && it.state != StateForm {
		state := it.state
		it.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot submit from %s", ErrInvalidTransition, state)
	}
	if values == nil {
		values = it.values
	}
	values = restrictToSchema(values, it.schemas)
	schemas := it.schemas
	returnTo := it.state

	// Validation happens before any network call and leaves the state alone.
	if err := core.ValidateRequiredTitle(values, schemas); err != nil {
		it.values = values
		it.mu.Unlock()
		return nil, err
	}
	it.values = values
	_ = it.transitionLocked(StateSubmitting)
	it.mu.Unlock()

	props := core.Serialize(values, core.WritableSchemas(schemas))
	page, err := s.notion.CreatePage(ctx, sess.NotionToken, core.BuildCreatePageRequest(it.DatabaseID, props))

	it.mu.Lock()
	defer it.mu.Unlock()
	if err != nil {
		_ = it.transitionLocked(returnTo)
		customLog.Warnf("Entry: write for interaction %s failed: %v", it.ID, err)
		return nil, &FlowError{
			Kind:    ErrWriteFailed,
			Message: writeFailureMessage(err),
			State:   returnTo,
			Values:  copyValues(values),
			Err:     err,
		}
	}

	_ = it.transitionLocked(StateIdle)
	it.values = core.ValueMap{}
	it.warnings = nil
	it.text = ""
	customLog.Printf("Entry: interaction %s created page %s", it.ID, page.ID)
	return page, nil
}

// Cancel abandons an interaction before it submits. In-flight schema and
// model calls are cancelled.
func (s *Service) Cancel(sessionID, interactionID string) error {
	it, err := s.interactions.get(sessionID, interactionID)
	if err != nil {
		return err
	}

	it.mu.Lock()
	if it.state == StateSubmitting {
		it.mu.Unlock()
		return ErrSubmissionInProgress
	}
	it.abandonLocked()
	it.state = StateIdle
	it.updatedAt = time.Now()
	it.mu.Unlock()

	s.interactions.remove(interactionID)
	customLog.Printf("Entry: interaction %s cancelled", interactionID)
	return nil
}

// QuickResult is the outcome of a one-shot AI entry.
type QuickResult struct {
	Page     *notion.CreatedPage   `json:"page"`
	Values   core.ValueMap         `json:"values"`
	Warnings []core.OptionMismatch `json:"warnings,omitempty"`
}

// Quick parses text and writes the page in one call. The interaction it
// uses is gone when Quick returns, so failures always report idle.
func (s *Service) Quick(ctx context.Context, sess *domain.Session, dashboardID, databaseID, text string, loc *time.Location) (*QuickResult, error) {
	snap, err := s.Begin(ctx, sess, dashboardID, databaseID, ModeAI)
	if err != nil {
		return nil, err
	}
	defer s.interactions.remove(snap.ID)

	snap, err = s.Parse(ctx, sess, snap.ID, text, loc)
	if err != nil {
		return nil, err
	}

	page, err := s.Submit(ctx, sess, snap.ID, nil)
	if err != nil {
		var flowErr *FlowError
		if errors.As(err, &flowErr) {
			flowErr.State = StateIdle
			flowErr.Text = text
		}
		return nil, err
	}
	return &QuickResult{Page: page, Values: snap.Values, Warnings: snap.Warnings}, nil
}

// Schema returns the normalized schema of a dashboard database.
func (s *Service) Schema(ctx context.Context, sess *domain.Session, dashboardID, databaseID string) (core.NormalizeResult, error) {
	dashboard, err := storage.FindDashboard(ctx, s.metaDB, sess.SessionID, dashboardID)
	if err != nil {
		return core.NormalizeResult{}, err
	}
	databaseID = core.CanonicalID(databaseID)
	if _, ok := dashboard.FindDatabase(databaseID); !ok {
		return core.NormalizeResult{}, fmt.Errorf("%w: %s", ErrDatabaseNotListed, databaseID)
	}
	it := &Interaction{SessionID: sess.SessionID, DatabaseID: databaseID, revision: dashboard.Revision}
	result, err := s.loadSchema(ctx, sess, it)
	if err != nil {
		return core.NormalizeResult{}, s.schemaError(err, StateIdle, "")
	}
	return result, nil
}

func (s *Service) loadSchema(ctx context.Context, sess *domain.Session, it *Interaction) (core.NormalizeResult, error) {
	key := cache.SchemaKey{SessionID: sess.SessionID, DatabaseID: it.DatabaseID, Revision: it.revision}
	return s.schemas.GetOrLoad(ctx, key, func(ctx context.Context) (core.NormalizeResult, error) {
		db, err := s.notion.GetDatabase(ctx, sess.NotionToken, it.DatabaseID)
		if err != nil {
			return core.NormalizeResult{}, err
		}
		result := core.Normalize(db.Properties)
		if len(result.Unsupported) > 0 {
			customLog.Debugf("Entry: database %s has unsupported fields %v", it.DatabaseID, result.Unsupported)
		}
		return result, nil
	})
}

func (s *Service) schemaError(err error, state State, text string) *FlowError {
	message := MsgSchemaFailed
	if errors.Is(err, notion.ErrUnreachable) {
		message = MsgConnectionLost
	}
	return &FlowError{Kind: ErrSchemaUnavailable, Message: message, State: state, Text: text, Err: err}
}

func canceledError(text string) *FlowError {
	return &FlowError{Kind: ErrCanceled, Message: MsgCanceled, State: StateIdle, Text: text}
}

func writeFailureMessage(err error) string {
	var apiErr *notion.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return MsgWriteFailed
}

// restrictToSchema keeps only keys naming a schema field.
func restrictToSchema(values core.ValueMap, schemas []core.FieldSchema) core.ValueMap {
	out := make(core.ValueMap, len(values))
	for _, schema := range schemas {
		if v, ok := values[schema.Name]; ok {
			out[schema.Name] = v
		}
	}
	return out
}

func copyValues(values core.ValueMap) core.ValueMap {
	out := make(core.ValueMap, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
