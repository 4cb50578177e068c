package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/saltyorg/vidprev/internal/config"
	"github.com/saltyorg/vidprev/internal/logging"
)

// GetSetting retrieves a setting value by key
func (db *Manager) GetSetting(key string) (string, error) {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores a setting value
func (db *Manager) SetSetting(key, value string) error {
	_, err := db.conn.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// GetAllSettings retrieves all settings
func (db *Manager) GetAllSettings() (map[string]string, error) {
	rows, err := db.conn.Query("SELECT key, value FROM settings ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings[key] = value
	}

	return settings, rows.Err()
}

// DeleteSetting removes a setting
func (db *Manager) DeleteSetting(key string) error {
	_, err := db.conn.Exec("DELETE FROM settings WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// DefaultSettings are seeded on first open. Values are stored in the plain
// text form config.Loader parses.
var DefaultSettings = func() map[string]string {
	p := config.DefaultPreview()
	return map[string]string{
		"log.max_size_mb":           strconv.Itoa(logging.DefaultMaxSizeMB),
		"log.max_backups":           strconv.Itoa(logging.DefaultMaxBackups),
		"log.max_age_days":          strconv.Itoa(logging.DefaultMaxAgeDays),
		"log.compress":              strconv.FormatBool(logging.DefaultCompress),
		config.KeyStartTime:         strconv.Itoa(p.StartTime),
		config.KeyPlaybackSpeed:     strconv.FormatFloat(p.PlaybackSpeed, 'f', -1, 64),
		config.KeyHoverDelay:        strconv.FormatInt(p.HoverDelay.Milliseconds(), 10),
		config.KeyTranscodeWidth:    strconv.Itoa(p.TranscodeWidth),
		config.KeyMutationThreshold: strconv.FormatFloat(p.MutationThreshold, 'f', -1, 64),
		config.KeyInputMode:         string(p.InputMode),
		config.KeyNavigationPoll:    p.NavigationPoll.String(),
		config.KeyVisibilityPoll:    p.VisibilityPoll.String(),
	}
}()

// InitializeDefaults sets default values for settings that don't exist
func (db *Manager) InitializeDefaults() error {
	return db.transaction(func(tx *sql.Tx) error {
		for key, value := range DefaultSettings {
			if _, err := tx.Exec(`
				INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO NOTHING
			`, key, value, time.Now()); err != nil {
				return fmt.Errorf("failed to seed setting %s: %w", key, err)
			}
		}
		return nil
	})
}
