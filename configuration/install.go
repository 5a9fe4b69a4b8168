package configuration

import (
	"io"
	"os"
	"path/filepath"

	operations "github.com/goliatone/go-operations"
)

// Installer moves a downloaded file into its target.
type Installer interface {
	Install(src, target string) error
}

type InstallerFunc func(src, target string) error

func (f InstallerFunc) Install(src, target string) error { return f(src, target) }

// FileInstaller replaces target atomically: the content is written next to
// the target and renamed over it. An existing target keeps its file mode.
// The downloaded file is removed once installed.
type FileInstaller struct{}

func (FileInstaller) Install(src, target string) error {
	meta := map[string]any{"path": src, "target": target}
	fail := func(err error) error {
		return operations.NewError(operations.ErrInstallFailed, "Install of "+target+" failed: "+err.Error(), err, meta)
	}

	in, err := os.Open(src)
	if err != nil {
		return fail(err)
	}
	defer in.Close()

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(err)
	}

	mode := os.FileMode(0o644)
	if info, err := os.Stat(target); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*")
	if err != nil {
		return fail(err)
	}
	tmpName := tmp.Name()

	_, err = io.Copy(tmp, in)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmpName, mode)
	}
	if err == nil {
		err = os.Rename(tmpName, target)
	}
	if err != nil {
		os.Remove(tmpName)
		return fail(err)
	}

	in.Close()
	os.Remove(src)
	return nil
}
