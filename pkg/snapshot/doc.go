// Package snapshot provides per-entity context snapshots, attribute bitmasks,
// the attribute dictionary that maps names to bits, and the read path's
// context cache.
//
// Snapshots are immutable: the external write path replaces them whole and
// never patches fields in place. The cache is a multiple-reader structure
// written only through full-snapshot replacement; concurrent fetches for the
// same entity are coalesced so a thundering herd issues a single upstream
// request. Read-your-writes consistency is available through signed override
// tokens whose attribute claims layer over cached attributes for a single
// request.
package snapshot
