// Package pool provides the bounded LRU collection of temporary fetchers.
//
// When the pool grows past capacity the least recently pushed members are
// popped. A member without subscribers is handed back to the caller to be
// cancelled; a member that still has subscribers is told to retire once it
// loses them and stops counting against capacity.
package pool
