package testutil

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/shaderhunt/internal/ir"
)

// ProgramBytecode builds a container whose header identity is id, so the
// "header" hash strategy fingerprints it as exactly id. body becomes the
// code section.
func ProgramBytecode(id uint64, body string) []byte {
	checksum := make([]byte, 16)
	binary.LittleEndian.PutUint64(checksum, id)
	return ir.BuildContainer(checksum,
		ir.Section{FourCC: "SHEX", Data: []byte(body)},
	)
}

// WriteFile writes content to dir/name and sets its modification time to
// mtime, returning the path. A zero mtime keeps the filesystem's.
func WriteFile(t testing.TB, dir, name, content string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}
	return path
}
