//go:build windows

package materialize

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/grovekit/grove/internal/linkgraph"
)

// createPointer makes the alias entry at path point at target. Symlink
// creation on Windows needs developer mode or elevation, so the junction
// kind (no privilege required) is the usual choice there.
func createPointer(kind linkgraph.Kind, target, path string) error {
	if kind == linkgraph.KindJunction {
		out, err := exec.Command("cmd", "/c", "mklink", "/J", path, target).CombinedOutput()
		if err != nil {
			return fmt.Errorf("%w: creating junction %s: %v (%s)", ErrFilesystem, path, err, out)
		}
		return nil
	}
	if err := os.Symlink(target, path); err != nil {
		return fmt.Errorf("%w: creating symlink %s: %w", ErrFilesystem, path, err)
	}
	return nil
}
