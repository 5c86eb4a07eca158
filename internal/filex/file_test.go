package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() { _ = os.Chdir(old) }
}

func TestEnsureSubdDir_CreatesDirectoryInCWD(t *testing.T) {
	tmp := t.TempDir()
	defer chdir(t, tmp)()

	got, err := EnsureSubdDir(".kopfkino")
	require.NoError(t, err)

	want := filepath.Join(tmp, ".kopfkino")
	require.Equal(t, want, got)

	fi, err := os.Stat(want)
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")

	if runtime.GOOS != "windows" {
		perm := fi.Mode().Perm()
		require.Equal(t, os.FileMode(0o700), perm&0o700)
	}
}

func TestEnsureSubdDir_AbsoluteAndIdempotent(t *testing.T) {
	want := filepath.Join(t.TempDir(), "state")

	first, err := EnsureSubdDir(want)
	require.NoError(t, err)
	second, err := EnsureSubdDir(want)
	require.NoError(t, err)

	require.Equal(t, want, first)
	require.Equal(t, first, second)
}

func TestEnsureSubdDir_FailsIfFileWithSameNameExists(t *testing.T) {
	tmp := t.TempDir()
	defer chdir(t, tmp)()

	require.NoError(t, os.WriteFile("state", []byte("x"), 0o660))

	_, err := EnsureSubdDir("state")
	require.Error(t, err, "should fail when a file exists with the same name")
}

type state struct {
	ActiveProject string `json:"activeProject"`
}

func TestJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	var s state
	ok, err := ReadJSON(path, &s)
	require.NoError(t, err)
	require.False(t, ok, "missing file is not an error")

	require.NoError(t, WriteJSON(path, state{ActiveProject: "p1"}))
	ok, err = ReadJSON(path, &s)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "p1", s.ActiveProject)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must be cleaned up")
}

func TestReadJSON_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

	var s state
	_, err := ReadJSON(path, &s)
	require.Error(t, err)
}
