package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DevSrijit/commsync-sub002/internal/inbox"
	"github.com/DevSrijit/commsync-sub002/internal/model"
)

// defaultDisplayTTL bounds how stale a displayed usage snapshot may be.
const defaultDisplayTTL = 10 * time.Second

// StaleUsageError reports that an operation succeeded but its usage
// record could not be written, so displayed counters may lag until the
// next reconcile. Callers log it and move on.
type StaleUsageError struct {
	Err error
}

func (e *StaleUsageError) Error() string {
	return fmt.Sprintf("usage record not written, counters may be stale: %v", e.Err)
}

func (e *StaleUsageError) Unwrap() error {
	return e.Err
}

// IsStaleUsage reports whether err is a soft usage-recording failure.
func IsStaleUsage(err error) bool {
	var staleErr *StaleUsageError
	return errors.As(err, &staleErr)
}

// QuotaExceededError reports that a plan ceiling has been reached. It
// gates features at their call sites; the data layer never rejects the
// operation that produced the overage.
type QuotaExceededError struct {
	Resource string
	Used     int64
	Total    int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded: %d of %d used", e.Resource, e.Used, e.Total)
}

// IsQuotaExceeded reports whether err is a plan-ceiling gate.
func IsQuotaExceeded(err error) bool {
	var quotaErr *QuotaExceededError
	return errors.As(err, &quotaErr)
}

// Snapshot is a reconciled view of one organization's usage: the
// persisted (clamped) subscription row plus the raw computed values
// before clamping.
type Snapshot struct {
	Subscription model.Subscription

	// RawStorage and RawConnections are the freshly computed values;
	// they can exceed the persisted counters when usage is over plan.
	RawStorage     int64
	RawConnections int
}

type cachedSnapshot struct {
	snap Snapshot
	at   time.Time
}

// Accountant computes organization-wide usage from live state and
// records it against the subscription. Usage is metering, never an
// enforcement gate.
type Accountant struct {
	store  *Store
	cache  *inbox.Cache
	logger *slog.Logger
	ttl    time.Duration

	mu      sync.Mutex
	display map[string]cachedSnapshot
}

// NewAccountant creates an accountant over the usage store and the
// message cache whose rows it measures.
func NewAccountant(store *Store, cache *inbox.Cache, ttl time.Duration, logger *slog.Logger) *Accountant {
	if ttl <= 0 {
		ttl = defaultDisplayTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Accountant{
		store:   store,
		cache:   cache,
		logger:  logger,
		ttl:     ttl,
		display: make(map[string]cachedSnapshot),
	}
}

// ComputeStorage measures cached bytes across every member of the
// organization with a single aggregate query.
func (a *Accountant) ComputeStorage(ctx context.Context, orgID string) (int64, error) {
	members, err := a.store.Members(ctx, orgID)
	if err != nil {
		return 0, err
	}
	return a.cache.SizeForUsers(ctx, members)
}

// ComputeConnections counts the organization's connections: every
// member carries one implicit base connection plus their linked
// accounts.
func (a *Accountant) ComputeConnections(ctx context.Context, orgID string) (int, error) {
	members, err := a.store.Members(ctx, orgID)
	if err != nil {
		return 0, err
	}
	linked, err := a.store.CountLinkedAccounts(ctx, members)
	if err != nil {
		return 0, err
	}
	return len(members) + linked, nil
}

// Reconcile recomputes storage and connections from live state,
// records them in a single clamped write, and returns the resulting
// snapshot. Stale intermediate values are never persisted: the
// counters always reflect a full recomputation.
func (a *Accountant) Reconcile(ctx context.Context, orgID string) (Snapshot, error) {
	storage, err := a.ComputeStorage(ctx, orgID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("computing storage for org %s: %w", orgID, err)
	}
	connections, err := a.ComputeConnections(ctx, orgID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("computing connections for org %s: %w", orgID, err)
	}

	if err := a.store.WriteUsage(ctx, orgID, storage, connections); err != nil {
		return Snapshot{}, err
	}

	sub, err := a.store.GetByOrg(ctx, orgID)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Subscription:   *sub,
		RawStorage:     storage,
		RawConnections: connections,
	}

	a.mu.Lock()
	a.display[orgID] = cachedSnapshot{snap: snap, at: time.Now()}
	a.mu.Unlock()

	return snap, nil
}

// Display returns the usage snapshot for rendering, reusing the last
// reconciled value while it is fresh. A stale or missing entry
// triggers a full reconcile.
func (a *Accountant) Display(ctx context.Context, orgID string) (Snapshot, error) {
	a.mu.Lock()
	cached, ok := a.display[orgID]
	a.mu.Unlock()

	if ok && time.Since(cached.at) < a.ttl {
		return cached.snap, nil
	}
	return a.Reconcile(ctx, orgID)
}

// CheckAICredits reports whether the organization has AI credits left,
// reading through the display cache. Feature call sites run this
// before the action; a plan without a credit ceiling always passes.
func (a *Accountant) CheckAICredits(ctx context.Context, orgID string) error {
	snap, err := a.Display(ctx, orgID)
	if err != nil {
		return err
	}

	sub := snap.Subscription
	if sub.TotalAICredits > 0 && sub.UsedAICredits >= sub.TotalAICredits {
		return &QuotaExceededError{
			Resource: "ai_credits",
			Used:     sub.UsedAICredits,
			Total:    sub.TotalAICredits,
		}
	}
	return nil
}

// DebitAICredits records an AI operation's credit cost against the
// organization. The operation has already succeeded by the time this
// runs, so a recording failure comes back as a StaleUsageError rather
// than failing the caller.
func (a *Accountant) DebitAICredits(ctx context.Context, orgID string, cost int64) error {
	if cost <= 0 {
		return nil
	}
	if err := a.store.DebitAICredits(ctx, orgID, cost); err != nil {
		a.logger.Warn("recording ai credit usage failed",
			"org", orgID, "cost", cost, "err", err)
		return &StaleUsageError{Err: err}
	}

	a.mu.Lock()
	delete(a.display, orgID)
	a.mu.Unlock()

	return nil
}
