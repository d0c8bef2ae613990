package sync

import (
	"context"
	"log/slog"
	gosync "sync"

	"github.com/DevSrijit/commsync-sub002/internal/inbox"
	"github.com/DevSrijit/commsync-sub002/internal/model"
	"github.com/DevSrijit/commsync-sub002/internal/provider"
)

// defaultBatchSize is how many body fetches run concurrently.
const defaultBatchSize = 5

// BodyFetcher resolves the adapter and account for a message's owning
// account so the completer can fetch its body.
type BodyFetcher interface {
	Lookup(accountID string) (provider.Adapter, model.Account, bool)
}

// Completer is the content completion worker: it fills in bodies for
// messages that arrived headers-only, in fixed-size concurrent batches.
// Each message gets exactly one completion attempt per discovery;
// failures are logged and swallowed.
type Completer struct {
	store     *inbox.Store
	fetcher   BodyFetcher
	batchSize int
	logger    *slog.Logger

	// OnContentGrowth, when set, fires after completed bodies are
	// merged back, so usage accounting can reconcile storage.
	OnContentGrowth func(ctx context.Context, completed int)

	workCh chan []model.Message
	stopCh chan struct{}

	mu      gosync.Mutex
	running bool
}

// NewCompleter creates a content completion worker over the store.
func NewCompleter(store *inbox.Store, fetcher BodyFetcher, logger *slog.Logger) *Completer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Completer{
		store:     store,
		fetcher:   fetcher,
		batchSize: defaultBatchSize,
		logger:    logger,
		workCh:    make(chan []model.Message, 16),
		stopCh:    make(chan struct{}),
	}
}

// SetFetcher wires the adapter registry. Called once during setup,
// before Start.
func (c *Completer) SetFetcher(f BodyFetcher) {
	c.fetcher = f
}

// Enqueue hands a set of content-incomplete messages to the worker
// without blocking. If the queue is full the discovery is dropped; the
// next sync pass will rediscover the messages.
func (c *Completer) Enqueue(msgs []model.Message) {
	select {
	case c.workCh <- msgs:
	default:
		c.logger.Warn("completion queue full, dropping discovery",
			"count", len(msgs))
	}
}

// Start launches the worker loop.
func (c *Completer) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	go c.loop(ctx)
}

// Stop halts the worker loop.
func (c *Completer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	close(c.stopCh)
	c.running = false
}

func (c *Completer) loop(ctx context.Context) {
	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case msgs := <-c.workCh:
			c.Process(ctx, msgs)
		}
	}
}

// Process completes one discovery synchronously: the messages are
// fetched in batches of batchSize, completed bodies are merged back
// through the standard merge path, and per-message failures never
// block the rest of the batch.
func (c *Completer) Process(ctx context.Context, msgs []model.Message) {
	if c.fetcher == nil {
		return
	}

	var (
		mu        gosync.Mutex
		completed []model.Message
	)

	for start := 0; start < len(msgs); start += c.batchSize {
		end := start + c.batchSize
		if end > len(msgs) {
			end = len(msgs)
		}

		var wg gosync.WaitGroup
		for _, m := range msgs[start:end] {
			adapter, account, ok := c.fetcher.Lookup(m.AccountID)
			if !ok {
				// Account was unlinked since discovery.
				continue
			}

			wg.Add(1)
			go func(m model.Message) {
				defer wg.Done()

				full, err := adapter.FetchBody(ctx, account, m.ID)
				if provider.IsPartialContent(err) {
					// Provider still has no body; leave the record as is.
					c.logger.Info("content not available yet",
						"account", m.AccountID, "message", m.ID)
					return
				}
				if err != nil {
					c.logger.Warn("content completion failed",
						"account", m.AccountID, "message", m.ID, "err", err)
					return
				}
				if full.ContentMissing() {
					return
				}

				mu.Lock()
				completed = append(completed, *full)
				mu.Unlock()
			}(m)
		}
		wg.Wait()
	}

	if len(completed) == 0 {
		return
	}

	c.store.MergeIn(completed)

	if c.OnContentGrowth != nil {
		c.OnContentGrowth(ctx, len(completed))
	}
}
