package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/spherical/pdf2cbz/internal/domain"
)

// fingerprintSample is how much of the source feeds the fingerprint.
const fingerprintSample = 1 << 20

// Fingerprint identifies a source document plus the parameters it is
// converted with. It hashes the first MiB and the size rather than the whole
// file, so two jobs on the same input with the same settings collide here
// and are kept apart by the job id.
func Fingerprint(source string, quality int, resize bool) (string, error) {
	f, err := os.Open(source)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	h := sha256.New()
	if _, err := io.CopyN(h, f, fingerprintSample); err != nil && err != io.EOF {
		return "", err
	}
	fmt.Fprintf(h, "|%d|q=%d|r=%t", info.Size(), quality, resize)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// newWorkspace creates a fresh working tree under root for one job.
func newWorkspace(root, fingerprint string, id uuid.UUID) (domain.Workspace, error) {
	name := fmt.Sprintf("%s-%s", fingerprint[:16], id.String()[:8])
	ws := domain.Workspace{
		Root:      filepath.Join(root, name),
		RasterDir: filepath.Join(root, name, "raster"),
		PackDir:   filepath.Join(root, name, "pack"),
	}

	if _, err := os.Stat(ws.Root); err == nil {
		return domain.Workspace{}, fmt.Errorf("working tree %s already exists", ws.Root)
	}
	for _, dir := range []string{ws.RasterDir, ws.PackDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = os.RemoveAll(ws.Root)
			return domain.Workspace{}, err
		}
	}
	return ws, nil
}
