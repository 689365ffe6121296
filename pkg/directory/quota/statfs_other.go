//go:build !linux && !darwin

package quota

import (
	"context"
	"errors"
)

// StatfsResolver is unavailable on platforms without statfs(2).
type StatfsResolver struct{}

// NewStatfsResolver creates a filesystem-backed Resolver.
func NewStatfsResolver() *StatfsResolver {
	return &StatfsResolver{}
}

func (r *StatfsResolver) ResolveStorage(_ context.Context, _ string) (Info, error) {
	return Info{}, errors.New("storage resolution is not supported on this platform")
}
