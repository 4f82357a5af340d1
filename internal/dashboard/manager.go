// Package dashboard owns the per-session view state: the cached expense list,
// the form draft, the edit target and the loading flag. Every mutation goes
// through the expense API and is followed by a full re-fetch.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"expensedash/internal/apiclient"
	"expensedash/internal/core"
	"expensedash/internal/events"
	applog "expensedash/internal/log"
	"expensedash/internal/notify"
)

// RecentCount is how many records the transaction list shows.
const RecentCount = 5

// DefaultLoadTimeout bounds a shared list fetch.
const DefaultLoadTimeout = 30 * time.Second

// ConfirmDeletePrompt is the question put to the user before a deletion.
const ConfirmDeletePrompt = "Are you sure you want to delete this expense?"

// Toast texts.
const (
	MsgLoadFailed   = "Failed to load expenses"
	MsgUpdated      = "Expense updated successfully"
	MsgAdded        = "Expense added successfully"
	MsgSaveFailed   = "Failed to save expense"
	MsgDeleted      = "Expense deleted successfully"
	MsgDeleteFailed = "Failed to delete expense"
)

var (
	// ErrNotConfirmed is returned by Remove when the user declines.
	ErrNotConfirmed = errors.New("deletion not confirmed")
	// ErrClosed is returned by operations on a closed manager.
	ErrClosed = errors.New("dashboard closed")
)

// ExpenseAPI is the slice of the expense API the dashboard needs.
type ExpenseAPI interface {
	ListExpenses(ctx context.Context) ([]core.Expense, error)
	CreateExpense(ctx context.Context, d core.Draft) (core.Expense, error)
	UpdateExpense(ctx context.Context, id string, d core.Draft) (core.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
}

// Confirmer asks the user a yes/no question.
type Confirmer func(prompt string) bool

// Options configures a Manager.
type Options struct {
	API       ExpenseAPI
	Notifier  notify.Notifier
	Publisher events.Publisher // nil disables change events
	UserID    string
	Logger    *applog.Logger
	// LoadTimeout bounds each list fetch; zero means DefaultLoadTimeout.
	LoadTimeout time.Duration
	// OnAuthFailure runs when the API rejects the session's credentials.
	OnAuthFailure func()
}

// Manager is safe for concurrent use. The lock is never held across API calls.
type Manager struct {
	api           ExpenseAPI
	notifier      notify.Notifier
	publisher     events.Publisher
	userID        string
	logger        *applog.Logger
	onAuthFailure func()
	loadTimeout   time.Duration

	loads singleflight.Group

	mu         sync.Mutex
	records    []core.Expense
	draft      core.Draft
	editingID  string
	inflight   int
	loaded     bool
	closed     bool
	generation uint64 // bumped by every successful mutation
	applied    uint64 // generation of the list currently held
}

// New creates a manager with an empty list and a default draft.
func New(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewQueue()
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	return &Manager{
		api:           opts.API,
		notifier:      opts.Notifier,
		publisher:     opts.Publisher,
		userID:        opts.UserID,
		logger:        opts.Logger.WithComponent(applog.ComponentDashboard),
		onAuthFailure: opts.OnAuthFailure,
		loadTimeout:   opts.LoadTimeout,
		records:       []core.Expense{},
		draft:         core.NewDraft(),
	}
}

// Load fetches the list. Concurrent calls made before a mutation collapse
// into one request; a list fetched before a later mutation never replaces one
// fetched after it. On failure the previous list is kept.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	gen := m.generation
	m.mu.Unlock()

	// The shared fetch outlives any single caller: a caller that goes away
	// stops waiting, the others still get the result.
	ch := m.loads.DoChan("load-"+strconv.FormatUint(gen, 10), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.loadTimeout)
		defer cancel()
		return nil, m.fetch(fctx, gen)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) fetch(ctx context.Context, gen uint64) error {
	m.mu.Lock()
	m.inflight++
	m.mu.Unlock()

	records, err := m.api.ListExpenses(ctx)

	m.mu.Lock()
	m.inflight--
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if err == nil && gen >= m.applied {
		m.records = records
		if m.records == nil {
			m.records = []core.Expense{}
		}
		m.applied = gen
		m.loaded = true
	}
	m.mu.Unlock()

	if err != nil {
		m.failed(ctx, core.Draft{}, applog.OpList, err)
		m.notifier.Error(MsgLoadFailed)
		return fmt.Errorf("load expenses: %w", err)
	}
	m.logger.DebugContext(ctx, "Expenses loaded", applog.FieldUserID, m.userID, applog.FieldCount, len(records))
	return nil
}

// Submit creates a record from the draft, or updates the edit target when one
// is set. On success the draft and target reset and the list is re-fetched.
// On failure both are kept.
func (m *Manager) Submit(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	draft, target := m.draft, m.editingID
	m.mu.Unlock()

	if err := draft.Validate(); err != nil {
		m.notifier.Error(MsgSaveFailed)
		return fmt.Errorf("invalid draft: %w", err)
	}

	var (
		saved  core.Expense
		err    error
		action events.Action
		op     string
	)
	if target != "" {
		action, op = events.ActionUpdated, applog.OpUpdate
		saved, err = m.api.UpdateExpense(ctx, target, draft)
	} else {
		action, op = events.ActionCreated, applog.OpCreate
		saved, err = m.api.CreateExpense(ctx, draft)
	}
	if err != nil {
		if m.isClosed() {
			return ErrClosed
		}
		m.failed(ctx, draft, op, err)
		m.notifier.Error(MsgSaveFailed)
		return fmt.Errorf("save expense: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.draft = core.NewDraft()
	m.editingID = ""
	m.generation++
	m.mu.Unlock()

	if target != "" {
		m.notifier.Success(MsgUpdated)
	} else {
		m.notifier.Success(MsgAdded)
	}

	id := saved.ID
	if id == "" {
		id = target
	}
	m.logger.InfoContext(ctx, "Expense saved",
		applog.FieldOperation, op,
		applog.FieldUserID, m.userID,
		applog.FieldExpenseID, id,
		applog.FieldCategory, draft.Category,
		applog.FieldAmount, draft.Amount)
	m.publish(ctx, action, id)

	_ = m.Load(ctx)
	return nil
}

// Remove deletes record id once confirm agrees. Declining sends nothing.
func (m *Manager) Remove(ctx context.Context, id string, confirm Confirmer) error {
	if m.isClosed() {
		return ErrClosed
	}
	if confirm == nil || !confirm(ConfirmDeletePrompt) {
		return ErrNotConfirmed
	}

	if err := m.api.DeleteExpense(ctx, id); err != nil {
		if m.isClosed() {
			return ErrClosed
		}
		m.failed(ctx, core.Draft{}, applog.OpDelete, err)
		m.notifier.Error(MsgDeleteFailed)
		return fmt.Errorf("delete expense %s: %w", id, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.generation++
	m.mu.Unlock()

	m.notifier.Success(MsgDeleted)
	m.logger.InfoContext(ctx, "Expense deleted", applog.FieldUserID, m.userID, applog.FieldExpenseID, id)
	m.publish(ctx, events.ActionDeleted, id)

	_ = m.Load(ctx)
	return nil
}

// SetDraft replaces the draft with form input.
func (m *Manager) SetDraft(d core.Draft) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.draft = d
}

// StartEdit copies record into the draft and makes it the edit target.
func (m *Manager) StartEdit(record core.Expense) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.draft = core.DraftFrom(record)
	m.editingID = record.ID
}

// StartEditByID starts editing a record from the cached list.
func (m *Manager) StartEditByID(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			m.draft = core.DraftFrom(r)
			m.editingID = r.ID
			return true
		}
	}
	return false
}

// CancelEdit clears the edit target and resets the draft.
func (m *Manager) CancelEdit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.draft = core.NewDraft()
	m.editingID = ""
}

// Close discards every response that completes afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// View is an immutable snapshot for rendering.
type View struct {
	Records   []core.Expense
	Draft     core.Draft
	EditingID string
	Loading   bool
	Loaded    bool
	Summary   core.Summary
}

// Editing reports whether the form targets an existing record.
func (v View) Editing() bool {
	return v.EditingID != ""
}

// View snapshots the state. Summary figures are derived from the records now.
func (m *Manager) View() View {
	m.mu.Lock()
	records := make([]core.Expense, len(m.records))
	copy(records, m.records)
	v := View{
		Records:   records,
		Draft:     m.draft,
		EditingID: m.editingID,
		Loading:   m.inflight > 0,
		Loaded:    m.loaded,
	}
	m.mu.Unlock()

	v.Summary = core.Summarize(records, RecentCount)
	return v
}

// Records returns a copy of the cached list.
func (m *Manager) Records() []core.Expense {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Expense, len(m.records))
	copy(out, m.records)
	return out
}

func (m *Manager) publish(ctx context.Context, action events.Action, id string) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, events.New(action, id, m.userID)); err != nil {
		m.logger.WarnContext(ctx, "Failed to publish expense event",
			applog.FieldExpenseID, id,
			applog.FieldError, err)
	}
}

func (m *Manager) failed(ctx context.Context, draft core.Draft, op string, err error) {
	kind := apiclient.Classify(err)
	m.logger.ErrorContext(ctx, "Expense API call failed",
		applog.NewFields().
			WithOperation(op).
			WithError(err, string(kind)).
			WithSession("", m.userID).
			WithExpense("", draft.Category, draft.Amount).
			ToSlice()...)
	if kind == apiclient.KindAuth && m.onAuthFailure != nil {
		m.onAuthFailure()
	}
}
