//go:build js && wasm

package jsdom

import (
	"errors"
	"syscall/js"
)

// LocalStorage reads window.localStorage.
type LocalStorage struct {
	v js.Value
}

// Storage returns the window's localStorage.
func (d *Document) Storage() (*LocalStorage, error) {
	v := d.win.Get("localStorage")
	if v.IsUndefined() || v.IsNull() {
		return nil, errors.New("localStorage is not available")
	}
	return &LocalStorage{v: v}, nil
}

// GetItem returns the stored value, or "" when the key is absent.
func (s *LocalStorage) GetItem(key string) (string, error) {
	v := s.v.Call("getItem", key)
	if v.IsNull() {
		return "", nil
	}
	return v.String(), nil
}
