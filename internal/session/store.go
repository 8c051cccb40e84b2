// Package session tracks USSD session state between a session's NEW
// event and its CLOSE event or expiry.
package session

import (
	"context"
	"errors"
)

// ErrNotFound indicates the session id has no live record: it was never
// created, or its TTL elapsed. Resuming such a session is an error, not
// a resurrection.
var ErrNotFound = errors.New("session not found")

// Session is the per-session record. ToAddr is the carrier-side service
// address resolved from the session's first message; FromAddr is the
// subscriber address.
type Session struct {
	ToAddr   string `json:"to_addr"`
	FromAddr string `json:"from_addr"`
}

// Store is a key-value store with per-entry expiry, keyed by the
// carrier-assigned session id.
//
// The TTL is fixed at creation: Load does not extend a session's expiry,
// so a conversation longer than the configured TTL is rejected on its
// next resume. Create performs a plain write; the carrier is assumed not
// to deliver overlapping notifications for one session id, so no
// conditional write is attempted. A SetNX-style guard would slot in here
// if that assumption ever fails.
type Store interface {
	Create(ctx context.Context, id string, s Session) error
	Load(ctx context.Context, id string) (Session, error)
}
