//go:build linux || darwin

package quota

import (
	"context"
	"math"

	"golang.org/x/sys/unix"
)

// StatfsResolver resolves storage usage with statfs(2) against the local
// filesystem holding the user's home.
type StatfsResolver struct{}

// NewStatfsResolver creates a filesystem-backed Resolver.
func NewStatfsResolver() *StatfsResolver {
	return &StatfsResolver{}
}

func (r *StatfsResolver) ResolveStorage(_ context.Context, path string) (Info, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Info{}, err
	}

	bsize := uint64(st.Bsize)
	total := st.Blocks * bsize
	free := st.Bavail * bsize
	used := total - st.Bfree*bsize

	info := Info{
		Free:  free,
		Used:  used,
		Total: total,
	}
	if total > 0 {
		info.Relative = math.Round(float64(used)/float64(total)*10000) / 100
	}
	return info, nil
}
