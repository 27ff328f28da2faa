// Package repositories implements SQLite persistence for conversions and playlists.
//
// All playlist position mutations (add, remove, reorder) run inside
// transactions so a partial shift is never observable; positions stay a
// contiguous 1..N sequence after every call.
//
// Key Implementations:
//   - [ConversionRepository] : conversion records keyed by unique video ID
//   - [PlaylistRepository] : playlists and ordered playlist membership
package repositories
