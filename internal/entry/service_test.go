package entry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ian-Chin/iunami-ai-extension/config"
	"github.com/Ian-Chin/iunami-ai-extension/internal/cache"
	"github.com/Ian-Chin/iunami-ai-extension/internal/core"
	"github.com/Ian-Chin/iunami-ai-extension/internal/domain"
	"github.com/Ian-Chin/iunami-ai-extension/internal/notion"
	"github.com/Ian-Chin/iunami-ai-extension/internal/storage"
)

const (
	testDatabaseID = "11111111-2222-3333-4444-555555555555"
	testProperties = `{
		"Name": {"type": "title", "title": {}},
		"Priority": {"type": "select", "select": {"options": [{"name": "High"}, {"name": "Low"}]}},
		"Done": {"type": "checkbox", "checkbox": {}},
		"Created": {"type": "created_time", "created_time": {}}
	}`
)

type fakeNotion struct {
	mu          sync.Mutex
	getCalls    int
	getErr      error
	createCalls int
	createErr   error
	createGate  chan struct{}
	lastCreate  core.CreatePageRequest
}

func (f *fakeNotion) GetDatabase(_ context.Context, token, databaseID string) (*notion.Database, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	db := &notion.Database{ID: databaseID}
	if err := json.Unmarshal([]byte(testProperties), &db.Properties); err != nil {
		return nil, err
	}
	return db, nil
}

func (f *fakeNotion) CreatePage(ctx context.Context, token string, req core.CreatePageRequest) (*notion.CreatedPage, error) {
	f.mu.Lock()
	gate := f.createGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.lastCreate = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &notion.CreatedPage{ID: "page-1", URL: "https://notion.so/page-1"}, nil
}

type fakeExtractor struct {
	values core.ValueMap
	err    error
	block  bool
	calls  int
	now    time.Time
}

func (f *fakeExtractor) Extract(ctx context.Context, _ []core.FieldSchema, _ string, now time.Time) (core.ValueMap, error) {
	f.calls++
	f.now = now
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.values, f.err
}

type fixture struct {
	svc       *Service
	notion    *fakeNotion
	extractor *fakeExtractor
	session   *domain.Session
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()
	ctx := context.Background()

	dir := t.TempDir()
	db, err := storage.ConnectMetadataDB(&config.Config{MetadataDbDir: dir, MetadataDbFile: "entry.db"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	session := &domain.Session{SessionID: "s1", NotionToken: "secret_token"}
	require.NoError(t, storage.CreateSession(ctx, db, session, "sealed"))
	require.NoError(t, storage.CreateDashboard(ctx, db, &domain.Dashboard{
		DashboardID: "dash-1",
		OwnerID:     "s1",
		Name:        "Home",
		Databases:   []domain.DatabaseRef{{ID: testDatabaseID, Title: "Tasks"}},
	}))

	schemas, err := cache.NewSchemaCache(16)
	require.NoError(t, err)

	f := &fixture{
		notion:    &fakeNotion{},
		extractor: &fakeExtractor{values: core.ValueMap{"Name": "Call the bank", "Priority": "high"}},
		session:   session,
	}
	f.svc, err = NewService(db, f.notion, f.extractor, schemas, Options{
		ParseTimeout:     timeout,
		InteractionLimit: 8,
		Now:              func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return f
}

func TestManualFlow(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	snap, err := f.svc.Begin(ctx, f.session, "dash-1", testDatabaseID, ModeManual)
	require.NoError(t, err)
	assert.Equal(t, StateForm, snap.State)
	require.Len(t, snap.Schemas, 3)
	assert.Equal(t, []string{"Created"}, snap.Unsupported)

	// Empty title: no network call, state unchanged.
	_, err = f.svc.Submit(ctx, f.session, snap.ID, core.ValueMap{"Name": "  ", "Done": true})
	var required *core.RequiredFieldError
	require.ErrorAs(t, err, &required)
	assert.Equal(t, `"Name" is required.`, err.Error())
	assert.Equal(t, 0, f.notion.createCalls)

	got, err := f.svc.Get("s1", snap.ID)
	require.NoError(t, err)
	assert.Equal(t, StateForm, got.State)

	page, err := f.svc.Submit(ctx, f.session, snap.ID, core.ValueMap{"Name": "Buy milk", "Done": true, "Ghost": "x"})
	require.NoError(t, err)
	assert.Equal(t, "page-1", page.ID)
	assert.Equal(t, testDatabaseID, f.notion.lastCreate.Parent.DatabaseID)
	assert.Contains(t, f.notion.lastCreate.Properties, "Name")
	assert.Contains(t, f.notion.lastCreate.Properties, "Done")
	assert.NotContains(t, f.notion.lastCreate.Properties, "Ghost")

	got, err = f.svc.Get("s1", snap.ID)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, got.State)
}

func TestAIFlow_ParsePreviewSubmit(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	snap, err := f.svc.Begin(ctx, f.session, "dash-1", testDatabaseID, ModeAI)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, snap.State)

	snap, err = f.svc.Parse(ctx, f.session, snap.ID, "call the bank, high priority", nil)
	require.NoError(t, err)
	assert.Equal(t, StatePreview, snap.State)
	assert.Equal(t, "Call the bank", snap.Values["Name"])
	require.Len(t, snap.Warnings, 1)
	assert.Equal(t, "High", snap.Warnings[0].Suggestion)

	// Re-parse from preview reuses the cached schema.
	snap, err = f.svc.Parse(ctx, f.session, snap.ID, "call the bank", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.notion.getCalls)

	page, err := f.svc.Submit(ctx, f.session, snap.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "page-1", page.ID)
	assert.Contains(t, f.notion.lastCreate.Properties, "Priority")
}

func TestParse_Failures(t *testing.T) {
	t.Run("model failure echoes text and returns to idle", func(t *testing.T) {
		f := newFixture(t, time.Second)
		f.extractor.err = errors.New("model down")
		ctx := context.Background()

		snap, err := f.svc.Begin(ctx, f.session, "dash-1", testDatabaseID, ModeAI)
		require.NoError(t, err)

		_, err = f.svc.Parse(ctx, f.session, snap.ID, "my text", nil)
		var flowErr *FlowError
		require.ErrorAs(t, err, &flowErr)
		assert.ErrorIs(t, err, ErrParseFailed)
		assert.Equal(t, MsgParseFailed, flowErr.Message)
		assert.Equal(t, "my text", flowErr.Text)

		got, _ := f.svc.Get("s1", snap.ID)
		assert.Equal(t, StateIdle, got.State)
	})

	t.Run("schema failure", func(t *testing.T) {
		f := newFixture(t, time.Second)
		f.notion.getErr = notion.ErrUnreachable
		ctx := context.Background()

		snap, err := f.svc.Begin(ctx, f.session, "dash-1", testDatabaseID, ModeAI)
		require.NoError(t, err)

		_, err = f.svc.Parse(ctx, f.session, snap.ID, "my text", nil)
		var flowErr *FlowError
		require.ErrorAs(t, err, &flowErr)
		assert.ErrorIs(t, err, ErrSchemaUnavailable)
		assert.Equal(t, MsgConnectionLost, flowErr.Message)
		assert.Equal(t, 0, f.extractor.calls)
	})

	t.Run("timeout cancels the model call", func(t *testing.T) {
		f := newFixture(t, 30*time.Millisecond)
		f.extractor.block = true
		ctx := context.Background()

		snap, err := f.svc.Begin(ctx, f.session, "dash-1", testDatabaseID, ModeAI)
		require.NoError(t, err)

		_, err = f.svc.Parse(ctx, f.session, snap.ID, "slow", nil)
		var flowErr *FlowError
		require.ErrorAs(t, err, &flowErr)
		assert.ErrorIs(t, err, ErrTimedOut)
		assert.Equal(t, MsgTimedOut, flowErr.Message)

		got, _ := f.svc.Get("s1", snap.ID)
		assert.Equal(t, StateIdle, got.State)
	})

	t.Run("manual entries are not parsed", func(t *testing.T) {
		f := newFixture(t, time.Second)
		snap, err := f.svc.Begin(context.Background(), f.session, "dash-1", testDatabaseID, ModeManual)
		require.NoError(t, err)

		_, err = f.svc.Parse(context.Background(), f.session, snap.ID, "x", nil)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestSubmit_WriteFailureKeepsValues(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	snap, err := f.svc.Begin(ctx, f.session, "dash-1", testDatabaseID, ModeAI)
	require.NoError(t, err)
	snap, err = f.svc.Parse(ctx, f.session, snap.ID, "text", nil)
	require.NoError(t, err)

	f.notion.createErr = &notion.APIError{Status: 400, Message: "Priority is not a valid option"}
	_, err = f.svc.Submit(ctx, f.session, snap.ID, nil)
	var flowErr *FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.Equal(t, "Priority is not a valid option", flowErr.Message)
	assert.Equal(t, StatePreview, flowErr.State)
	assert.Equal(t, "Call the bank", flowErr.Values["Name"])

	f.notion.createErr = errors.New("connection reset")
	_, err = f.svc.Submit(ctx, f.session, snap.ID, nil)
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, MsgWriteFailed, flowErr.Message)

	// Retry without re-entering anything.
	f.notion.createErr = nil
	_, err = f.svc.Submit(ctx, f.session, snap.ID, nil)
	require.NoError(t, err)
}

func TestSubmit_GuardsConcurrentSubmission(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()
	gate := make(chan struct{})
	f.notion.createGate = gate

	snap, err := f.svc.Begin(ctx, f.session, "dash-1", testDatabaseID, ModeManual)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Submit(ctx, f.session, snap.ID, core.ValueMap{"Name": "Once"})
		done <- err
	}()

	require.Eventually(t, func() bool {
		got, _ := f.svc.Get("s1", snap.ID)
		return got.State == StateSubmitting
	}, time.Second, 5*time.Millisecond)

	_, err = f.svc.Submit(ctx, f.session, snap.ID, core.ValueMap{"Name": "Twice"})
	assert.ErrorIs(t, err, ErrSubmissionInProgress)
	assert.ErrorIs(t, f.svc.Cancel("s1", snap.ID), ErrSubmissionInProgress)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.notion.createCalls)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, 5*time.Second)
	f.extractor.block = true
	ctx := context.Background()

	snap, err := f.svc.Begin(ctx, f.session, "dash-1", testDatabaseID, ModeAI)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Parse(ctx, f.session, snap.ID, "text", nil)
		done <- err
	}()

	require.Eventually(t, func() bool {
		got, _ := f.svc.Get("s1", snap.ID)
		return got.State == StateThinking
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.svc.Cancel("s1", snap.ID))
	err = <-done
	assert.ErrorIs(t, err, ErrCanceled)

	_, err = f.svc.Get("s1", snap.ID)
	assert.ErrorIs(t, err, ErrInteractionNotFound)
}

func TestInteractionsAreScopedToSession(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	snap, err := f.svc.Begin(ctx, f.session, "dash-1", testDatabaseID, ModeAI)
	require.NoError(t, err)

	other := &domain.Session{SessionID: "s2"}
	_, err = f.svc.Parse(ctx, other, snap.ID, "x", nil)
	assert.ErrorIs(t, err, ErrInteractionNotFound)
	assert.ErrorIs(t, f.svc.Cancel("s2", snap.ID), ErrInteractionNotFound)

	_, err = f.svc.Begin(ctx, f.session, "dash-1", "99999999-9999-9999-9999-999999999999", ModeAI)
	assert.ErrorIs(t, err, ErrDatabaseNotListed)

	_, err = f.svc.Begin(ctx, f.session, "missing", testDatabaseID, ModeAI)
	assert.ErrorIs(t, err, storage.ErrDashboardNotFound)
}

func TestQuick(t *testing.T) {
	f := newFixture(t, time.Second)

	result, err := f.svc.Quick(context.Background(), f.session, "dash-1", testDatabaseID, "call the bank", nil)
	require.NoError(t, err)
	assert.Equal(t, "page-1", result.Page.ID)
	assert.Equal(t, "Call the bank", result.Values["Name"])
	assert.Equal(t, 0, f.svc.interactions.len())
}

func TestParse_PromptTimeFollowsCallerZone(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		loc        *time.Location
		wantDate   string
		wantOffset string
	}{
		{"service clock when no zone given", nil, "2025-06-01", "UTC+00:00"},
		{"behind UTC crosses midnight", time.FixedZone("", -10*3600), "2025-05-31", "UTC-10:00"},
		{"half-hour zone", time.FixedZone("", 5*3600+30*60), "2025-06-01", "UTC+05:30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, time.Second)
			snap, err := f.svc.Begin(ctx, f.session, "dash-1", testDatabaseID, ModeAI)
			require.NoError(t, err)

			_, err = f.svc.Parse(ctx, f.session, snap.ID, "call the bank tomorrow", tt.loc)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDate, f.extractor.now.Format("2006-01-02"))
			assert.Equal(t, tt.wantOffset, core.FormatUTCOffset(f.extractor.now))
		})
	}
}

func TestResolveLocation(t *testing.T) {
	offset := func(m int) *int { return &m }

	loc, err := ResolveLocation("Asia/Kolkata", offset(-300))
	require.NoError(t, err)
	noon := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "UTC+05:30", core.FormatUTCOffset(noon.In(loc)), "the zone name wins over the offset")

	loc, err = ResolveLocation("", offset(-480))
	require.NoError(t, err)
	assert.Equal(t, "UTC-08:00", core.FormatUTCOffset(noon.In(loc)))

	loc, err = ResolveLocation("", nil)
	require.NoError(t, err)
	assert.Nil(t, loc)

	for _, bad := range []struct {
		zone   string
		offset *int
	}{
		{"Mars/Olympus_Mons", nil},
		{"Local", nil},
		{"", offset(15 * 60)},
		{"", offset(-13 * 60)},
	} {
		_, err := ResolveLocation(bad.zone, bad.offset)
		assert.ErrorIs(t, err, ErrUnknownTimezone)
	}
}

func TestQuick_WriteFailureReportsIdle(t *testing.T) {
	f := newFixture(t, time.Second)
	f.notion.createErr = &notion.APIError{Status: 400, Message: "Priority is not a property"}

	_, err := f.svc.Quick(context.Background(), f.session, "dash-1", testDatabaseID, "call the bank", nil)
	var flowErr *FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, StateIdle, flowErr.State, "the interaction no longer exists")
	assert.Equal(t, "call the bank", flowErr.Text)
	assert.Equal(t, "Call the bank", flowErr.Values["Name"])
	assert.Equal(t, 0, f.svc.interactions.len())
}

func TestSchema_RefreshedDashboardReloads(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	_, err := f.svc.Schema(ctx, f.session, "dash-1", testDatabaseID)
	require.NoError(t, err)
	_, err = f.svc.Schema(ctx, f.session, "dash-1", testDatabaseID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.notion.getCalls)

	_, err = storage.ReplaceDashboardContents(ctx, f.svc.metaDB, "s1", "dash-1", "Home", nil,
		[]domain.DatabaseRef{{ID: testDatabaseID, Title: "Tasks"}})
	require.NoError(t, err)

	_, err = f.svc.Schema(ctx, f.session, "dash-1", testDatabaseID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.notion.getCalls)
}
