// Package sync drives the per-account synchronization passes that keep
// the canonical store current.
package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/DevSrijit/commsync-sub002/internal/inbox"
	"github.com/DevSrijit/commsync-sub002/internal/model"
	"github.com/DevSrijit/commsync-sub002/internal/provider"
)

// Mode selects whether a pass surfaces a loading signal. Merge and
// dedup semantics are identical in both modes.
type Mode int

const (
	// Foreground passes are user-triggered (first load, explicit
	// refresh) and report progress.
	Foreground Mode = iota

	// Background passes run off the timer, silently.
	Background
)

// State represents the sync state of a single account.
type State int

const (
	Idle State = iota
	Syncing
)

// Status holds the sync state for a single account.
type Status struct {
	AccountID string
	State     State
	LastSync  time.Time
	LastError error
}

// AccountResult is the per-account outcome of one pass.
type AccountResult struct {
	AccountID string
	Fetched   int
	Err       error
}

// PassSummary is the best-effort result of one sync pass: per-account
// outcomes, never a pass-level failure.
type PassSummary struct {
	Mode       Mode
	Started    time.Time
	Finished   time.Time
	PerAccount []AccountResult
}

// Failed returns the results for accounts whose fetch failed.
func (s PassSummary) Failed() []AccountResult {
	var out []AccountResult
	for _, r := range s.PerAccount {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// fetchTimeout bounds a single account's fetch within a pass.
const fetchTimeout = 30 * time.Second

// entry holds a registered account and its adapter.
type entry struct {
	account model.Account
	adapter provider.Adapter
}

// Config carries orchestrator tunables.
type Config struct {
	// Interval is the default background sync interval.
	Interval time.Duration

	// PageSize is the steady-state fetch window.
	PageSize int

	// BulkPageSize is the fetch window used by link-time bulk syncs.
	BulkPageSize int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 120 * time.Second
	}
	if c.PageSize <= 0 {
		c.PageSize = 50
	}
	if c.BulkPageSize <= 0 {
		c.BulkPageSize = 500
	}
	return c
}

// Orchestrator drives sync passes: parallel fan-out across accounts,
// isolated per-account failure, and a single canonical-store write per
// pass. Within one account passes are strictly serialized; overlapping
// triggers are skipped, never queued.
type Orchestrator struct {
	store  *inbox.Store
	cache  *inbox.Cache
	cfg    Config
	logger *slog.Logger

	completer *Completer

	mu       gosync.Mutex
	entries  []entry
	inflight map[string]bool
	statuses map[string]*Status
	nextDue  map[string]time.Time

	triggerCh chan struct{}
	stopCh    chan struct{}
	running   bool

	// OnProgress, when set, receives foreground loading signals.
	OnProgress func(active bool)
}

// NewOrchestrator creates an orchestrator over the given store and
// cache. The completer may be nil when content completion is wired
// separately or not at all.
func NewOrchestrator(
	store *inbox.Store,
	cache *inbox.Cache,
	completer *Completer,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:     store,
		cache:     cache,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		completer: completer,
		inflight:  make(map[string]bool),
		statuses:  make(map[string]*Status),
		nextDue:   make(map[string]time.Time),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// RegisterAccount adds an account and its adapter to the sync set.
func (o *Orchestrator) RegisterAccount(account model.Account, adapter provider.Adapter) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.entries = append(o.entries, entry{account: account, adapter: adapter})
	o.statuses[account.ID] = &Status{AccountID: account.ID, State: Idle}
	o.nextDue[account.ID] = time.Now()
}

// UnregisterAccount removes an account from future syncs. Its messages
// stay addressable in the canonical store.
func (o *Orchestrator) UnregisterAccount(accountID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, e := range o.entries {
		if e.account.ID == accountID {
			o.entries = append(o.entries[:i], o.entries[i+1:]...)
			break
		}
	}
	delete(o.statuses, accountID)
	delete(o.nextDue, accountID)
}

// Lookup resolves the adapter and account for a registered account ID.
// It satisfies the completion worker's BodyFetcher.
func (o *Orchestrator) Lookup(accountID string) (provider.Adapter, model.Account, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, e := range o.entries {
		if e.account.ID == accountID {
			return e.adapter, e.account, true
		}
	}
	return nil, model.Account{}, false
}

// Statuses returns a copy of the current per-account sync statuses.
func (o *Orchestrator) Statuses() []Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Status, 0, len(o.statuses))
	for _, s := range o.statuses {
		out = append(out, *s)
	}
	return out
}

// SyncNow runs one pass over every registered account and returns the
// per-account summary. Accounts with a pass already in flight are
// skipped.
func (o *Orchestrator) SyncNow(ctx context.Context, mode Mode) PassSummary {
	return o.runPass(ctx, mode, o.snapshotEntries(nil))
}

// SyncAccount runs one pass for a single account ("sync now" per
// account).
func (o *Orchestrator) SyncAccount(ctx context.Context, accountID string, mode Mode) PassSummary {
	return o.runPass(ctx, mode, o.snapshotEntries(func(e entry) bool {
		return e.account.ID == accountID
	}))
}

// BulkSync runs the link-time initial sync for one account: large
// pages, newest-first, looping until pagination is exhausted.
func (o *Orchestrator) BulkSync(ctx context.Context, accountID string) AccountResult {
	entries := o.snapshotEntries(func(e entry) bool {
		return e.account.ID == accountID
	})
	if len(entries) == 0 {
		return AccountResult{AccountID: accountID}
	}
	e := entries[0]

	if !o.acquire(e.account.ID) {
		return AccountResult{AccountID: accountID}
	}
	defer o.release(e.account.ID)

	batch, err := o.fetchAll(ctx, e, o.cfg.BulkPageSize)
	result := AccountResult{AccountID: accountID, Fetched: len(batch), Err: err}
	if err != nil {
		o.recordFailure(e.account.ID, err)
		return result
	}

	o.store.MergeIn(batch)
	o.finishSuccess(ctx, []entry{e}, [][]model.Message{batch})
	return result
}

// Start launches the background scheduler. Each account syncs on its
// own cadence; a tick that finds an account still busy from the prior
// pass drops it rather than queueing.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.mu.Unlock()

	go o.loop(ctx)
}

// Stop halts the background scheduler.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return
	}
	close(o.stopCh)
	o.running = false
}

// Trigger requests an immediate background pass without blocking.
func (o *Orchestrator) Trigger() {
	select {
	case o.triggerCh <- struct{}{}:
	default:
	}
}

// loop is the scheduler: a coarse ticker checks per-account due times.
func (o *Orchestrator) loop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.runPass(ctx, Background, o.dueEntries())
		case <-o.triggerCh:
			o.runPass(ctx, Background, o.snapshotEntries(nil))
		}
	}
}

// dueEntries returns the accounts whose next scheduled sync has
// arrived, advancing their due times.
func (o *Orchestrator) dueEntries() []entry {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	var due []entry
	for _, e := range o.entries {
		if o.nextDue[e.account.ID].After(now) {
			continue
		}
		due = append(due, e)
		o.nextDue[e.account.ID] = now.Add(e.account.PollInterval(o.cfg.Interval))
	}
	return due
}

func (o *Orchestrator) snapshotEntries(keep func(entry) bool) []entry {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []entry
	for _, e := range o.entries {
		if keep == nil || keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// runPass executes one pass over the given accounts: fan out fetches in
// parallel, collect settled results, then write the canonical store
// exactly once with every successful batch merged in.
func (o *Orchestrator) runPass(ctx context.Context, mode Mode, entries []entry) PassSummary {
	summary := PassSummary{Mode: mode, Started: time.Now()}
	if len(entries) == 0 {
		summary.Finished = time.Now()
		return summary
	}

	if mode == Foreground && o.OnProgress != nil {
		o.OnProgress(true)
		defer o.OnProgress(false)
	}

	type settled struct {
		e     entry
		batch []model.Message
		err   error
	}

	results := make([]settled, 0, len(entries))
	resultCh := make(chan settled, len(entries))

	launched := 0
	for _, e := range entries {
		if !o.acquire(e.account.ID) {
			// A pass is already in flight for this account; stale
			// triggers are dropped, not stacked.
			continue
		}
		launched++

		go func(e entry) {
			defer o.release(e.account.ID)

			fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
			defer cancel()

			batch, err := o.fetchSteady(fetchCtx, e)
			resultCh <- settled{e: e, batch: batch, err: err}
		}(e)
	}

	// Wait for all launched fetches; individual failures are isolated.
	for i := 0; i < launched; i++ {
		results = append(results, <-resultCh)
	}

	var combined []model.Message
	var succeeded []entry
	var batches [][]model.Message

	for _, r := range results {
		result := AccountResult{
			AccountID: r.e.account.ID,
			Fetched:   len(r.batch),
			Err:       r.err,
		}
		summary.PerAccount = append(summary.PerAccount, result)

		if r.err != nil {
			o.recordFailure(r.e.account.ID, r.err)
			if provider.IsAuthError(r.err) {
				o.logger.Warn("account needs re-linking",
					"account", r.e.account.ID, "err", r.err)
			} else {
				o.logger.Warn("sync failed",
					"account", r.e.account.ID, "err", r.err)
			}
			continue
		}

		combined = append(combined, r.batch...)
		succeeded = append(succeeded, r.e)
		batches = append(batches, r.batch)
	}

	// One canonical-store write per pass: partial states are never
	// visible mid-pass.
	if len(succeeded) > 0 {
		o.store.MergeIn(combined)
		o.finishSuccess(ctx, succeeded, batches)
	}

	summary.Finished = time.Now()
	return summary
}

// fetchSteady performs the steady-state fetch for one account: a small
// newest-first window.
func (o *Orchestrator) fetchSteady(ctx context.Context, e entry) ([]model.Message, error) {
	opts := provider.FetchOptions{
		Page:     1,
		PageSize: o.cfg.PageSize,
		SortDesc: true,
	}
	if !e.account.LastSync.IsZero() {
		// Overlap the window slightly so boundary messages are never
		// missed; merge dedup absorbs the repeats.
		opts.Filter.Since = e.account.LastSync.Add(-time.Minute)
	}

	result, err := e.adapter.Fetch(ctx, e.account, opts)
	if err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// fetchAll pages through the full provider state with large windows,
// following either pagination style until exhaustion.
func (o *Orchestrator) fetchAll(ctx context.Context, e entry, pageSize int) ([]model.Message, error) {
	var all []model.Message

	opts := provider.FetchOptions{
		Page:     1,
		PageSize: pageSize,
		SortDesc: true,
	}

	for {
		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		result, err := e.adapter.Fetch(fetchCtx, e.account, opts)
		cancel()
		if err != nil {
			return nil, err
		}

		all = append(all, result.Messages...)
		if result.Exhausted(opts) {
			return all, nil
		}

		if result.Cursor != "" {
			opts.Cursor = result.Cursor
		} else {
			opts.Page++
		}
	}
}

// finishSuccess records lastSync for successful accounts, persists
// their slices of the working set, and hands content-incomplete
// messages to the completion worker.
func (o *Orchestrator) finishSuccess(
	ctx context.Context,
	succeeded []entry,
	batches [][]model.Message,
) {
	now := time.Now()
	snapshot := o.store.Snapshot()

	o.mu.Lock()
	for i := range succeeded {
		if status, ok := o.statuses[succeeded[i].account.ID]; ok {
			status.State = Idle
			status.LastSync = now
			status.LastError = nil
		}
		for j := range o.entries {
			if o.entries[j].account.ID == succeeded[i].account.ID {
				o.entries[j].account.LastSync = now
			}
		}
	}
	o.mu.Unlock()

	for _, e := range succeeded {
		perAccount := make([]model.Message, 0)
		for _, m := range snapshot {
			if m.AccountID == e.account.ID {
				perAccount = append(perAccount, m)
			}
		}
		if o.cache != nil {
			err := o.cache.SaveMessages(ctx, e.account.UserID, e.account.ID, perAccount)
			if err != nil {
				o.logger.Warn("persisting message cache failed",
					"account", e.account.ID, "err", err)
			}
		}
	}

	if o.completer != nil {
		var incomplete []model.Message
		for _, batch := range batches {
			for _, m := range batch {
				if m.ContentMissing() {
					incomplete = append(incomplete, m)
				}
			}
		}
		if len(incomplete) > 0 {
			o.completer.Enqueue(incomplete)
		}
	}
}

func (o *Orchestrator) acquire(accountID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.inflight[accountID] {
		return false
	}
	o.inflight[accountID] = true
	if status, ok := o.statuses[accountID]; ok {
		status.State = Syncing
	}
	return true
}

func (o *Orchestrator) release(accountID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.inflight, accountID)
	if status, ok := o.statuses[accountID]; ok {
		status.State = Idle
	}
}

func (o *Orchestrator) recordFailure(accountID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if status, ok := o.statuses[accountID]; ok {
		status.State = Idle
		status.LastError = err
	}
}
