// Package types defines the shared Go types used by every freshwatch
// component: versioned key identities, edition numbers, the update payload
// delivered to subscribers and the Subscriber callback contract.
//
// A versioned key is written USK@<routing>/<docname>/<edition>. Stripping the
// edition yields a ClearKey, the canonical identity that indexes all per-key
// state. The single block holding one edition is addressed by its slot URI,
// SSK@<routing>/<docname>-<edition>.
package types
