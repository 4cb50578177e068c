// Package credentials reads the Jellyfin web client's stored login.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// StorageKey is the local storage key the Jellyfin web client writes its
// server list under.
const StorageKey = "jellyfin_credentials"

var (
	// ErrConfiguration marks a missing or unusable credential. The preview
	// engine stays inert when Load returns it.
	ErrConfiguration = errors.New("preview engine is not configured")

	ErrNotFound  = fmt.Errorf("%w: no stored jellyfin credentials", ErrConfiguration)
	ErrMalformed = fmt.Errorf("%w: stored jellyfin credentials are malformed", ErrConfiguration)
)

// Store is a string key/value store such as browser localStorage.
type Store interface {
	GetItem(key string) (string, error)
}

// Document is the JSON shape stored under StorageKey.
type Document struct {
	Servers []Server `json:"Servers"`
}

// Server is one entry of Document.Servers. Unknown fields are ignored.
type Server struct {
	AccessToken   string `json:"AccessToken"`
	UserID        string `json:"UserId"`
	ManualAddress string `json:"ManualAddress,omitempty"`
	LocalAddress  string `json:"LocalAddress,omitempty"`
}

// Credentials is the first server record, reduced to what API calls need.
type Credentials struct {
	Token  string
	UserID string
	// Address is the server base URL, empty when the record carries none.
	Address string
}

// Load reads StorageKey from store and parses it.
func Load(store Store) (Credentials, error) {
	if store == nil {
		return Credentials{}, ErrNotFound
	}
	raw, err := store.GetItem(StorageKey)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return Parse(raw)
}

// Parse decodes a credential document and returns its first server record.
func Parse(raw string) (Credentials, error) {
	if strings.TrimSpace(raw) == "" {
		return Credentials{}, ErrNotFound
	}

	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(doc.Servers) == 0 {
		return Credentials{}, fmt.Errorf("%w: server list is empty", ErrMalformed)
	}

	first := doc.Servers[0]
	if first.AccessToken == "" {
		return Credentials{}, fmt.Errorf("%w: access token is empty", ErrMalformed)
	}

	address := first.ManualAddress
	if address == "" {
		address = first.LocalAddress
	}

	return Credentials{
		Token:   first.AccessToken,
		UserID:  first.UserID,
		Address: strings.TrimRight(address, "/"),
	}, nil
}

// FileStore serves a credential document from a JSON file on disk. It only
// answers StorageKey.
type FileStore struct {
	Path string
}

// GetItem implements Store.
func (f FileStore) GetItem(key string) (string, error) {
	if key != StorageKey {
		return "", fmt.Errorf("file store has no item %q", key)
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read credentials file: %w", err)
	}
	return string(data), nil
}

// Setter is a Store that can also be written.
type Setter interface {
	Store
	SetItem(key, value string) error
}

// Import validates raw and writes it under StorageKey.
func Import(store Setter, raw string) (Credentials, error) {
	creds, err := Parse(raw)
	if err != nil {
		return Credentials{}, err
	}
	if err := store.SetItem(StorageKey, raw); err != nil {
		return Credentials{}, fmt.Errorf("failed to store credentials: %w", err)
	}
	return creds, nil
}

// Masked returns the token with all but the last four characters hidden.
func (c Credentials) Masked() string {
	if len(c.Token) <= 4 {
		return strings.Repeat("*", len(c.Token))
	}
	return strings.Repeat("*", len(c.Token)-4) + c.Token[len(c.Token)-4:]
}
