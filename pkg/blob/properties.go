// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package blob

import "time"

// TTLInfinite marks blobs that never expire.
const TTLInfinite = time.Duration(-1)

// Properties is the typed metadata stored with a blob. User metadata and
// the blob bytes themselves are opaque to the frontend.
type Properties struct {
	Size         int64
	ServiceID    string
	OwnerID      string
	ContentType  string
	Private      bool
	TTL          time.Duration
	CreationTime time.Time
	AccountID    int16
	ContainerID  int16
}

// ExpiresAt returns the expiry instant. Meaningless when TTL is
// TTLInfinite.
func (p *Properties) ExpiresAt() time.Time {
	return p.CreationTime.Add(p.TTL)
}

// Expired reports whether the blob was expired at now.
func (p *Properties) Expired(now time.Time) bool {
	if p.TTL == TTLInfinite {
		return false
	}
	return now.After(p.ExpiresAt())
}
