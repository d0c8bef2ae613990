package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DevSrijit/commsync-sub002/internal/ai"
	"github.com/DevSrijit/commsync-sub002/internal/credential"
	"github.com/DevSrijit/commsync-sub002/internal/inbox"
	"github.com/DevSrijit/commsync-sub002/internal/model"
	"github.com/DevSrijit/commsync-sub002/internal/provider"
	"github.com/DevSrijit/commsync-sub002/internal/provider/discord"
	"github.com/DevSrijit/commsync-sub002/internal/provider/gmail"
	"github.com/DevSrijit/commsync-sub002/internal/provider/imapmail"
	"github.com/DevSrijit/commsync-sub002/internal/provider/smscarrier"
	"github.com/DevSrijit/commsync-sub002/internal/provider/whatsapp"
	providersync "github.com/DevSrijit/commsync-sub002/internal/sync"
	"github.com/DevSrijit/commsync-sub002/internal/usage"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	configPath := model.DefaultConfigPath()
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		logger.Error("loading config", "path", configPath, "error", err)
		os.Exit(1)
	}

	cache, err := inbox.OpenCache(cfg.CacheDB)
	if err != nil {
		logger.Error("opening cache", "path", cfg.CacheDB, "error", err)
		os.Exit(1)
	}
	defer cache.Close()

	usageStore, err := usage.OpenStore(cfg.Usage.DBPath)
	if err != nil {
		logger.Error("opening usage store", "path", cfg.Usage.DBPath, "error", err)
		os.Exit(1)
	}
	defer usageStore.Close()

	accountant := usage.NewAccountant(
		usageStore, cache,
		time.Duration(cfg.Usage.DisplayTTLSec)*time.Second,
		logger,
	)

	store := inbox.NewStore()

	completer := providersync.NewCompleter(store, nil, logger)
	orch := providersync.NewOrchestrator(
		store, cache, completer,
		providersync.Config{
			Interval:     time.Duration(cfg.Sync.PollIntervalSec) * time.Second,
			PageSize:     cfg.Sync.PageSize,
			BulkPageSize: cfg.Sync.BulkPageSize,
		},
		logger,
	)
	completer.SetFetcher(orch)

	ctx := context.Background()

	orgID := cfg.Usage.OrgID
	if orgID != "" {
		completer.OnContentGrowth = func(ctx context.Context, completed int) {
			if _, err := accountant.Reconcile(ctx, orgID); err != nil &&
				!errors.Is(err, usage.ErrNoSubscription) {
				logger.Warn("usage reconcile after content completion",
					"org", orgID, "error", err)
			}
		}
	}

	for _, ac := range cfg.Accounts {
		if !ac.Enabled {
			continue
		}

		adapter, err := buildAdapter(ac)
		if err != nil {
			logger.Warn("skipping account", "account", ac.ID, "error", err)
			continue
		}

		account := ac.Account()
		orch.RegisterAccount(account, adapter)
		if err := usageStore.RegisterLinkedAccount(ctx, account); err != nil {
			logger.Warn("registering linked account", "account", ac.ID, "error", err)
		}
		if orgID != "" {
			if err := usageStore.AddMember(ctx, orgID, account.UserID); err != nil {
				logger.Warn("recording org membership", "account", ac.ID, "error", err)
			}
		}

		// Warm the working set from the last persisted snapshot so the
		// first pass starts from known state instead of empty.
		cached, err := cache.LoadMessages(ctx, account.UserID, account.ID)
		if err != nil {
			logger.Warn("loading cached messages", "account", ac.ID, "error", err)
		} else if len(cached) > 0 {
			store.MergeIn(cached)
		}

		logger.Info("account registered",
			"account", ac.ID, "type", ac.Type, "label", ac.Label)
	}

	var assistant *ai.Client
	if apiKey, err := credential.Get("ai-api-key"); err == nil && apiKey != "" {
		assistant = ai.New(apiKey, cfg.AI.Model, cfg.AI.MaxTokens)
		logger.Info("assistant enabled", "model", cfg.AI.Model)
	} else {
		logger.Info("assistant disabled; no api key in keyring")
	}

	if orgID != "" {
		snap, err := accountant.Reconcile(ctx, orgID)
		switch {
		case errors.Is(err, usage.ErrNoSubscription):
			logger.Warn("no subscription on record", "org", orgID)
		case err != nil:
			logger.Warn("initial usage reconcile", "org", orgID, "error", err)
		default:
			logger.Info("usage reconciled",
				"org", orgID,
				"storage", snap.Subscription.UsedStorage,
				"connections", snap.Subscription.UsedConnections)
		}
	}

	completer.Start(ctx)
	orch.Start(ctx)

	// First pass immediately rather than waiting out the interval.
	orch.Trigger()

	logger.Info("sync daemon running",
		"accounts", len(cfg.Accounts),
		"interval_sec", cfg.Sync.PollIntervalSec)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// SIGUSR1 asks the assistant for a summary of the working set.
	summarize := make(chan os.Signal, 1)
	signal.Notify(summarize, syscall.SIGUSR1)

loop:
	for {
		select {
		case <-summarize:
			if assistant == nil {
				logger.Warn("summary requested but assistant is disabled")
				continue
			}
			if orgID != "" {
				err := accountant.CheckAICredits(ctx, orgID)
				switch {
				case usage.IsQuotaExceeded(err):
					logger.Warn("summary skipped, ai credits exhausted", "org", orgID)
					continue
				case err != nil && !errors.Is(err, usage.ErrNoSubscription):
					logger.Warn("checking ai credits", "org", orgID, "error", err)
				}
			}
			res, err := assistant.Summarize(ctx, store.Snapshot())
			if err != nil {
				logger.Warn("inbox summary failed", "error", err)
				continue
			}
			logger.Info("inbox summary", "text", res.Text, "credits", res.CreditCost)
			if orgID != "" {
				if err := accountant.DebitAICredits(ctx, orgID, res.CreditCost); err != nil {
					logger.Warn("credit debit deferred", "error", err)
				}
			}

		case <-shutdown:
			break loop
		}
	}

	orch.Stop()
	completer.Stop()
	logger.Info("sync daemon stopped")
}

// buildAdapter constructs the provider adapter for one configured
// account, loading its credentials from the system keyring.
func buildAdapter(ac model.AccountConfig) (provider.Adapter, error) {
	switch model.ProviderType(ac.Type) {
	case model.ProviderIMAP:
		var creds imapmail.Credentials
		if err := credential.GetAccount(ac.ID, &creds); err != nil {
			return nil, err
		}
		return imapmail.NewAdapter(creds), nil

	case model.ProviderGmail:
		var creds gmail.Credentials
		if err := credential.GetAccount(ac.ID, &creds); err != nil {
			return nil, err
		}
		return gmail.NewAdapter(ac.BaseURL, creds), nil

	case model.ProviderDiscord:
		var creds discord.Credentials
		if err := credential.GetAccount(ac.ID, &creds); err != nil {
			return nil, err
		}
		return discord.NewAdapter(ac.BaseURL, creds), nil

	case model.ProviderWhatsApp:
		var creds whatsapp.Credentials
		if err := credential.GetAccount(ac.ID, &creds); err != nil {
			return nil, err
		}
		return whatsapp.NewAdapter(ac.BaseURL, creds), nil

	case model.ProviderSMSA:
		var creds smscarrier.Credentials
		if err := credential.GetAccount(ac.ID, &creds); err != nil {
			return nil, err
		}
		return smscarrier.NewCarrierA(ac.BaseURL, creds), nil

	case model.ProviderSMSB:
		var creds smscarrier.Credentials
		if err := credential.GetAccount(ac.ID, &creds); err != nil {
			return nil, err
		}
		return smscarrier.NewCarrierB(ac.BaseURL, creds), nil

	default:
		return nil, fmt.Errorf("unknown provider type %q", ac.Type)
	}
}
