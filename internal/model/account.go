package model

import "time"

// Account is a single linked provider credential set owned by one user.
// Credentials live in the vault as an opaque blob; only the matching
// adapter's constructor ever decodes them.
type Account struct {
	// ID is the unique identifier for this account.
	ID string `json:"id"`

	// UserID identifies the owning user.
	UserID string `json:"user_id"`

	// Label is the user-defined display name for the account.
	Label string `json:"label"`

	ProviderType ProviderType `json:"provider_type"`

	// BaseURL is the provider endpoint, where the provider family is
	// self-hosted or bridged (IMAP host, bridge URL, carrier API root).
	BaseURL string `json:"base_url"`

	// LastSync is when the last successful sync pass for this account
	// completed. Zero until the first success.
	LastSync time.Time `json:"last_sync"`

	// PollIntervalSec overrides the default background sync interval
	// when non-zero.
	PollIntervalSec int `json:"poll_interval_sec"`
}

// PollInterval returns the effective background sync interval.
func (a Account) PollInterval(fallback time.Duration) time.Duration {
	if a.PollIntervalSec > 0 {
		return time.Duration(a.PollIntervalSec) * time.Second
	}
	return fallback
}
