// Package quota resolves storage usage for a user's home filesystem.
package quota

import "context"

// Info describes storage usage for a filesystem root. Values are bytes;
// Relative is the used percentage rounded to two decimals.
type Info struct {
	Free     uint64  `json:"free"`
	Used     uint64  `json:"used"`
	Total    uint64  `json:"total"`
	Relative float64 `json:"relative"`
}

// Resolver reports storage usage for a user's home path.
type Resolver interface {
	// ResolveStorage returns usage for the filesystem containing path.
	ResolveStorage(ctx context.Context, path string) (Info, error)
}
