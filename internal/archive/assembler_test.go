package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pdf2cbz/internal/domain"
)

func fillPack(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, domain.CompressedName(i))
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("page-%d", i)), 0o644))
	}
	return dir
}

// dropOne packs every file but the last.
func dropOne(ctx context.Context, archivePath, dir string) error {
	names, err := listFiles(dir)
	if err != nil {
		return err
	}
	short, err := os.MkdirTemp(filepath.Dir(dir), "short")
	if err != nil {
		return err
	}
	defer os.RemoveAll(short)
	for _, n := range names[:len(names)-1] {
		data, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(short, n), data, 0o644); err != nil {
			return err
		}
	}
	return Zip(ctx, archivePath, short)
}

func garbage(_ context.Context, archivePath, _ string) error {
	return os.WriteFile(archivePath, []byte("not a zip"), 0o644)
}

func failing(_ context.Context, _, _ string) error {
	return domain.IOError("disk went away", nil)
}

func leftovers(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestAssemble_Success(t *testing.T) {
	pack := fillPack(t, 7)
	outDir := t.TempDir()
	dest := filepath.Join(outDir, "book.cbz")

	res := NewAssembler(nil).Assemble(context.Background(), pack, dest)
	require.True(t, res.OK(), "unexpected failure: %v", res.Err)
	assert.Equal(t, dest, res.Path)
	assert.Equal(t, 7, res.Entries)

	r, err := zip.OpenReader(dest)
	require.NoError(t, err)
	defer r.Close()
	require.Len(t, r.File, 7)
	for i, f := range r.File {
		assert.Equal(t, domain.CompressedName(i), f.Name)
		assert.Equal(t, zip.Deflate, f.Method)
	}
	assert.Equal(t, []string{"book.cbz"}, leftovers(t, outDir))
}

func TestAssemble_ReplacesExisting(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "book.cbz")
	require.NoError(t, os.WriteFile(dest, []byte("stale"), 0o644))

	res := NewAssembler(nil).Assemble(context.Background(), fillPack(t, 2), dest)
	require.True(t, res.OK())

	n, err := Count(dest)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAssemble_ArchiveMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}

	tests := []struct {
		name     string
		existing os.FileMode // 0 = no previous archive
		want     os.FileMode
	}{
		{"new archive is world readable", 0, 0o644},
		{"replacement keeps previous mode", 0o640, 0o640},
		{"replacement keeps wider mode", 0o664, 0o664},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "book.cbz")
			if tt.existing != 0 {
				require.NoError(t, os.WriteFile(dest, []byte("stale"), 0o600))
				require.NoError(t, os.Chmod(dest, tt.existing))
			}

			res := NewAssembler(nil).Assemble(context.Background(), fillPack(t, 2), dest)
			require.True(t, res.OK(), "unexpected failure: %v", res.Err)

			info, err := os.Stat(dest)
			require.NoError(t, err)
			assert.Equal(t, tt.want, info.Mode().Perm())
		})
	}
}

func TestAssemble_RejectionsLeaveDestinationUntouched(t *testing.T) {
	tests := []struct {
		name        string
		pack        PackFunc
		reason      domain.Reason
		packRemoved bool
	}{
		{"broken container", garbage, domain.ReasonOutputBroken, false},
		{"entries missing", dropOne, domain.ReasonFilesMissing, true},
		{"packer failure", failing, domain.ReasonWriteError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pack := fillPack(t, 4)
			outDir := t.TempDir()
			dest := filepath.Join(outDir, "book.cbz")
			before := []byte("previous archive")
			require.NoError(t, os.WriteFile(dest, before, 0o644))

			res := NewAssemblerWith(tt.pack, nil).Assemble(context.Background(), pack, dest)

			assert.False(t, res.OK())
			assert.Equal(t, tt.reason, res.Reason)
			assert.True(t, domain.IsType(res.Err, domain.ErrorTypeIntegrity))

			after, err := os.ReadFile(dest)
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Equal(t, []string{"book.cbz"}, leftovers(t, outDir), "staging file must be removed")

			if tt.packRemoved {
				assert.NoDirExists(t, pack)
			} else {
				assert.DirExists(t, pack)
			}
		})
	}
}

func TestAssemble_NoDestinationCreatedOnFailure(t *testing.T) {
	outDir := t.TempDir()
	dest := filepath.Join(outDir, "book.cbz")

	res := NewAssemblerWith(garbage, nil).Assemble(context.Background(), fillPack(t, 1), dest)
	assert.Equal(t, domain.ReasonOutputBroken, res.Reason)
	assert.NoFileExists(t, dest)
	assert.Empty(t, leftovers(t, outDir))
}

func TestAssemble_MissingWorkDir(t *testing.T) {
	res := NewAssembler(nil).Assemble(context.Background(), filepath.Join(t.TempDir(), "gone"), filepath.Join(t.TempDir(), "x.cbz"))
	assert.Equal(t, domain.ReasonWriteError, res.Reason)
}

func TestZip_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Zip(ctx, filepath.Join(t.TempDir(), "x.zip"), fillPack(t, 2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStaged(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "out.cbz")

	s, err := Stage(final)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(s.Path()))
	assert.NotEqual(t, final, s.Path())
	assert.NoFileExists(t, final)

	require.NoError(t, os.WriteFile(s.Path(), []byte("x"), 0o644))
	require.NoError(t, s.Commit())
	assert.FileExists(t, final)
	assert.NoFileExists(t, s.Path())

	s.Abort()
	assert.FileExists(t, final, "abort after commit is a no-op")

	s2, err := Stage(final)
	require.NoError(t, err)
	s2.Abort()
	assert.NoFileExists(t, s2.Path())
	assert.Equal(t, []string{"out.cbz"}, leftovers(t, dir))
}
