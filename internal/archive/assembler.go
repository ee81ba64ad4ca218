// Package archive packs a directory of page images into a zip container
// with a build, verify, then rename protocol.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zip"

	"github.com/spherical/pdf2cbz/internal/domain"
	"github.com/spherical/pdf2cbz/internal/observability"
)

// PackFunc writes the files of dir into a new archive at archivePath.
type PackFunc func(ctx context.Context, archivePath, dir string) error

// Result is the outcome of an assembly. Reason is empty on success.
type Result struct {
	Path    string
	Entries int
	Reason  domain.Reason
	Err     error
}

// OK reports whether the archive was committed.
func (r Result) OK() bool {
	return r.Reason == ""
}

// Assembler is the ArchiveAssembler.
type Assembler struct {
	pack   PackFunc
	logger *observability.Logger
}

// NewAssembler creates an assembler writing deflated zip archives.
func NewAssembler(logger *observability.Logger) *Assembler {
	return NewAssemblerWith(Zip, logger)
}

// NewAssemblerWith creates an assembler with a custom packer.
func NewAssemblerWith(pack PackFunc, logger *observability.Logger) *Assembler {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Assembler{pack: pack, logger: logger.WithOperation("archive")}
}

// Assemble packs workDir into dest. dest is replaced only after the new
// archive opened cleanly, holds at least as many entries as workDir held
// files, and is non-empty. Every rejected archive is deleted; dest is then
// left exactly as it was.
func (a *Assembler) Assemble(ctx context.Context, workDir, dest string) Result {
	expected, err := countFiles(workDir)
	if err != nil {
		return a.fail(domain.ReasonWriteError, fmt.Errorf("list %s: %w", workDir, err))
	}

	staged, err := Stage(dest)
	if err != nil {
		return a.fail(domain.ReasonWriteError, err)
	}

	syncFS()
	if err := a.pack(ctx, staged.Path(), workDir); err != nil {
		staged.Abort()
		return a.fail(domain.ReasonWriteError, err)
	}
	syncFS()

	entries, err := Count(staged.Path())
	if err != nil {
		staged.Abort()
		return a.fail(domain.ReasonOutputBroken, err)
	}

	if entries < expected {
		staged.Abort()
		_ = os.RemoveAll(workDir)
		return a.fail(domain.ReasonFilesMissing,
			fmt.Errorf("archive holds %d entries, expected %d", entries, expected))
	}

	info, err := os.Stat(staged.Path())
	if err != nil || info.Size() == 0 {
		staged.Abort()
		return a.fail(domain.ReasonWriteError, fmt.Errorf("archive missing or empty: %v", err))
	}

	if err := staged.Commit(); err != nil {
		staged.Abort()
		return a.fail(domain.ReasonWriteError, err)
	}

	a.logger.Info().
		Str("path", dest).
		Int("entries", entries).
		Int64("bytes", info.Size()).
		Msg("Archive committed")

	return Result{Path: dest, Entries: entries}
}

func (a *Assembler) fail(reason domain.Reason, err error) Result {
	a.logger.Error().Err(err).Str("reason", string(reason)).Msg("Archive rejected")
	return Result{Reason: reason, Err: domain.IntegrityError(string(reason), err)}
}

// Zip writes the top-level regular files of dir into a deflated zip, in
// name order.
func Zip(ctx context.Context, archivePath, dir string) error {
	names, err := listFiles(dir)
	if err != nil {
		return err
	}

	out, err := os.OpenFile(archivePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return domain.IOError("Failed to create archive", err)
	}

	zw := zip.NewWriter(out)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			_ = out.Close()
			return err
		}
		if err := addFile(zw, filepath.Join(dir, name), name); err != nil {
			_ = zw.Close()
			_ = out.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
		_ = out.Close()
		return domain.IOError("Failed to finish archive", err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return domain.IOError("Failed to sync archive", err)
	}
	return out.Close()
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return domain.IOError("Failed to open "+name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.IOError("Failed to stat "+name, err)
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return domain.IOError("Failed to build header for "+name, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return domain.IOError("Failed to add "+name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return domain.IOError("Failed to write "+name, err)
	}
	return nil
}

// Count opens a zip archive and returns its number of entries.
func Count(path string) (int, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return len(r.File), nil
}

func countFiles(dir string) (int, error) {
	names, err := listFiles(dir)
	return len(names), err
}

// listFiles returns the sorted names of the top-level regular files in dir.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
