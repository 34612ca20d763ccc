package volume

import (
	"os"
)

// renameIfAbsent moves oldpath to newpath with a hard link, which fails with
// EEXIST when newpath is taken. If the source cannot be unlinked afterwards
// the new link is removed again and the error returned.
func renameIfAbsent(oldpath, newpath string) error {
	if err := os.Link(oldpath, newpath); err != nil {
		return err
	}
	if err := os.Remove(oldpath); err != nil {
		_ = os.Remove(newpath)
		return err
	}
	return nil
}
