//go:build !windows

package materialize

import (
	"fmt"
	"os"

	"github.com/grovekit/grove/internal/linkgraph"
)

// createPointer makes the alias entry at path point at target. Junctions
// are an NTFS construct; on unix platforms the junction kind degrades to a
// regular symlink.
func createPointer(kind linkgraph.Kind, target, path string) error {
	_ = kind
	if err := os.Symlink(target, path); err != nil {
		return fmt.Errorf("%w: creating symlink %s: %w", ErrFilesystem, path, err)
	}
	return nil
}
