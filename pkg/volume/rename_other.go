//go:build !linux

package volume

func moveNoReplace(oldpath, newpath string) error {
	return renameIfAbsent(oldpath, newpath)
}
