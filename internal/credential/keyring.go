// Package credential stores per-account secrets in the system keyring.
// Account credentials are kept as JSON blobs keyed by account id, one
// blob per linked account, so unlinking an account removes exactly its
// secrets.
package credential

import (
	"encoding/json"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "commsync"

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/commsync/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("commsync-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// accountKey namespaces credential entries per account.
func accountKey(accountID string) string {
	return "account:" + accountID
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// SetAccount stores an account's provider credentials as a JSON blob.
// The creds value is the provider adapter's credentials struct.
func SetAccount(accountID string, creds any) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshaling credentials for %s: %w", accountID, err)
	}
	return Set(accountKey(accountID), string(data))
}

// GetAccount loads an account's provider credentials into creds.
func GetAccount(accountID string, creds any) error {
	data, err := Get(accountKey(accountID))
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(data), creds); err != nil {
		return fmt.Errorf("unmarshaling credentials for %s: %w", accountID, err)
	}
	return nil
}

// DeleteAccount removes an account's provider credentials.
func DeleteAccount(accountID string) error {
	return Delete(accountKey(accountID))
}
