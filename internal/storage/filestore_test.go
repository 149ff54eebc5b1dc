package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sekai02/pagewrite/internal/nvm"
	"github.com/sekai02/pagewrite/internal/sys"
)

func TestFileBackendCreatesErasedImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")

	b, err := OpenFileBackend(path, testGeometry)
	if err != nil {
		t.Fatalf("Cannot open image: %v", err)
	}

	writeWords(b, 0x20, []byte{'W', 'T', 'F', 0})
	if b.Fault() {
		t.Fatalf("Unexpected fault")
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Cannot close image: %v", err)
	}
	if err := b.Close(); err == nil {
		t.Fatalf("Expected a second Close() to fail")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Cannot read image: %v", err)
	}
	if int64(len(raw)) != testGeometry.Size() {
		t.Fatalf("Image size = %d, want %d", len(raw), testGeometry.Size())
	}
	if !(raw[0x20] == 'W' && raw[0x22] == 'F' && raw[0x23] == 0 && raw[0x24] == 0xFF && raw[0] == 0xFF) {
		t.Fatalf("Unexpected image contents: %v", raw[0x1E:0x26])
	}
}

func TestFileBackendDerivesPageCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	image := make([]byte, 64)
	for i := range image {
		image[i] = byte(i)
	}
	if err := os.WriteFile(path, image, 0644); err != nil {
		t.Fatalf("Cannot write image: %v", err)
	}

	b, err := OpenFileBackend(path, sys.Geometry{PageSize: 16})
	if err != nil {
		t.Fatalf("Cannot open image: %v", err)
	}
	defer b.Close()

	if got := b.Geometry().PageCount; got != 4 {
		t.Errorf("PageCount = %d, want 4", got)
	}
	if got := b.ByteAt(nvm.Address(0x2A)); got != 0x2A {
		t.Errorf("ByteAt(0x2A) = 0x%X, want 0x2A", got)
	}
	if !strings.Contains(b.Name(), "flash.bin") {
		t.Errorf("Name() = %q", b.Name())
	}
}

func TestFileBackendRejectsEmptyImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	if _, err := OpenFileBackend(path, sys.Geometry{PageSize: 16}); err == nil {
		t.Fatalf("Expected an empty image without page count to be rejected")
	}
}
