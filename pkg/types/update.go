package types

// Update is the payload delivered to subscribers when a key advances.
type Update struct {
	// Key is the versioned key at the discovered edition.
	Key Key

	// Edition is the discovered edition (same as Key.Edition).
	Edition Edition

	// KnownGood is true when the edition's content was verified, false when
	// only the slot was observed.
	KnownGood bool

	// NewSlotToo is true for a KnownGood update that also advanced the
	// latest observed slot.
	NewSlotToo bool
}

// Subscriber receives freshness updates. Subscriptions are keyed by the
// interface value, so implementations must have a comparable dynamic type
// (in practice, a pointer). Pointers to zero-size types are rejected, since
// two of them may compare equal.
//
// OnFoundEdition is never called while registry locks are held. Calls for a
// single subscriber are delivered one at a time, in commit order.
type Subscriber interface {
	OnFoundEdition(u Update)
}
