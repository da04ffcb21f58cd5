package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func newTestDiskManager(t *testing.T, compression CompressionType) (*DiskManager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := NewDiskManagerWithCompression(path, compression)
	if err != nil {
		t.Fatalf("Failed to create DiskManager: %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	return dm, path
}

func TestDiskManager(t *testing.T) {
	dm, _ := newTestDiskManager(t, CompressionNone)

	pageId1, err := dm.AllocatePage()
	if err != nil {
		t.Fatal(err)
	}
	pageId2, err := dm.AllocatePage()
	if err != nil {
		t.Fatal(err)
	}

	if pageId1 != 0 {
		t.Errorf("Expected first page ID to be 0, got %d", pageId1)
	}
	if pageId2 != 1 {
		t.Errorf("Expected second page ID to be 1, got %d", pageId2)
	}
}

func TestReadWritePage(t *testing.T) {
	dm, _ := newTestDiskManager(t, CompressionNone)

	testData1 := make([]byte, PageSize)
	testData2 := make([]byte, PageSize)
	for i := 0; i < PageSize; i++ {
		testData1[i] = byte(i % 256)
		testData2[i] = byte((i + 128) % 256)
	}

	p1, _ := dm.AllocatePage()
	p2, _ := dm.AllocatePage()

	if err := dm.WritePage(p1, testData1); err != nil {
		t.Fatalf("Failed to write page %d: %v", p1, err)
	}
	if err := dm.WritePage(p2, testData2); err != nil {
		t.Fatalf("Failed to write page %d: %v", p2, err)
	}

	buf := make([]byte, PageSize)
	if err := dm.ReadPage(p1, buf); err != nil {
		t.Fatalf("Failed to read page %d: %v", p1, err)
	}
	if !bytes.Equal(buf, testData1) {
		t.Errorf("Page %d data mismatch", p1)
	}

	if err := dm.ReadPage(p2, buf); err != nil {
		t.Fatalf("Failed to read page %d: %v", p2, err)
	}
	if !bytes.Equal(buf, testData2) {
		t.Errorf("Page %d data mismatch", p2)
	}
}

func TestReadUnwrittenPageIsZero(t *testing.T) {
	for _, ct := range []CompressionType{CompressionNone, CompressionSnappy} {
		dm, _ := newTestDiskManager(t, ct)

		pageId, _ := dm.AllocatePage()
		buf := bytes.Repeat([]byte{0xAA}, PageSize)
		if err := dm.ReadPage(pageId, buf); err != nil {
			t.Fatalf("%v: read failed: %v", ct, err)
		}
		if !isZero(buf) {
			t.Errorf("%v: unwritten page should read as zeros", ct)
		}
	}
}

func TestAllocatePageReusesDeallocated(t *testing.T) {
	dm, _ := newTestDiskManager(t, CompressionNone)

	for i := 0; i < 3; i++ {
		if _, err := dm.AllocatePage(); err != nil {
			t.Fatal(err)
		}
	}

	if err := dm.DeallocatePage(1); err != nil {
		t.Fatalf("DeallocatePage failed: %v", err)
	}

	reused, _ := dm.AllocatePage()
	if reused != 1 {
		t.Errorf("Expected reused page 1, got %d", reused)
	}
	next, _ := dm.AllocatePage()
	if next != 3 {
		t.Errorf("Expected fresh page 3, got %d", next)
	}
}

func TestDeallocatePageTwiceRejected(t *testing.T) {
	dm, _ := newTestDiskManager(t, CompressionNone)

	for i := 0; i < 2; i++ {
		if _, err := dm.AllocatePage(); err != nil {
			t.Fatal(err)
		}
	}

	if err := dm.DeallocatePage(0); err != nil {
		t.Fatalf("DeallocatePage failed: %v", err)
	}
	if err := dm.DeallocatePage(0); !IsErrorCode(err, ErrCodeInvalidPageID) {
		t.Fatalf("Expected invalid page id on second free, got %v", err)
	}

	first, _ := dm.AllocatePage()
	second, _ := dm.AllocatePage()
	if first == second {
		t.Fatalf("Allocated page %d twice", first)
	}
	if first != 0 || second != 2 {
		t.Errorf("Expected pages 0 and 2, got %d and %d", first, second)
	}

	// Reallocated ids can be freed again
	if err := dm.DeallocatePage(first); err != nil {
		t.Errorf("DeallocatePage after reuse failed: %v", err)
	}
}

func TestUnallocatedPageRejected(t *testing.T) {
	dm, _ := newTestDiskManager(t, CompressionNone)

	buf := make([]byte, PageSize)
	if err := dm.ReadPage(5, buf); !IsErrorCode(err, ErrCodeInvalidPageID) {
		t.Errorf("ReadPage: expected invalid page id, got %v", err)
	}
	if err := dm.WritePage(5, buf); !IsErrorCode(err, ErrCodeInvalidPageID) {
		t.Errorf("WritePage: expected invalid page id, got %v", err)
	}
	if err := dm.DeallocatePage(5); !IsErrorCode(err, ErrCodeInvalidPageID) {
		t.Errorf("DeallocatePage: expected invalid page id, got %v", err)
	}
}

func TestWrongBufferSize(t *testing.T) {
	dm, _ := newTestDiskManager(t, CompressionNone)
	pageId, _ := dm.AllocatePage()

	if err := dm.WritePage(pageId, make([]byte, 10)); err == nil {
		t.Error("Expected error for short write buffer")
	}
	if err := dm.ReadPage(pageId, make([]byte, PageSize+1)); err == nil {
		t.Error("Expected error for oversized read buffer")
	}
}

func TestDiskManagerPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	data := patternPage(200)

	dm, err := NewDiskManager(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		dm.AllocatePage()
	}
	if err := dm.WritePage(2, data); err != nil {
		t.Fatal(err)
	}
	if err := dm.Close(); err != nil {
		t.Fatal(err)
	}

	dm, err = NewDiskManager(path)
	if err != nil {
		t.Fatal(err)
	}
	defer dm.Close()

	// Pages up to the last written slot survive a reopen
	next, _ := dm.AllocatePage()
	if next != 3 {
		t.Errorf("Expected next page 3 after reopen, got %d", next)
	}

	buf := make([]byte, PageSize)
	if err := dm.ReadPage(2, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, data) {
		t.Error("Page 2 not persisted")
	}
}

func TestCompressedDiskManager(t *testing.T) {
	for _, ct := range []CompressionType{CompressionLZ4, CompressionSnappy} {
		t.Run(ct.String(), func(t *testing.T) {
			dm, path := newTestDiskManager(t, ct)

			compressible := patternPage(64)
			incompressible := randomPage(3)

			p1, _ := dm.AllocatePage()
			p2, _ := dm.AllocatePage()
			if err := dm.WritePage(p1, compressible); err != nil {
				t.Fatal(err)
			}
			if err := dm.WritePage(p2, incompressible); err != nil {
				t.Fatal(err)
			}

			buf := make([]byte, PageSize)
			if err := dm.ReadPage(p1, buf); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(buf, compressible) {
				t.Error("Compressible page mismatch")
			}
			if err := dm.ReadPage(p2, buf); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(buf, incompressible) {
				t.Error("Incompressible page mismatch")
			}

			stats := dm.GetCompressionStats()
			if stats.Pages != 2 || stats.Compressed != 1 {
				t.Errorf("Unexpected stats: %+v", stats)
			}

			info, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}
			if info.Size() > 2*SlotSize {
				t.Errorf("File larger than two slots: %d", info.Size())
			}
		})
	}
}

func TestCompressedDiskManagerDetectsCorruption(t *testing.T) {
	dm, path := newTestDiskManager(t, CompressionLZ4)

	pageId, _ := dm.AllocatePage()
	if err := dm.WritePage(pageId, patternPage(64)); err != nil {
		t.Fatal(err)
	}
	if err := dm.Sync(); err != nil {
		t.Fatal(err)
	}

	// Flip a byte in the stored checksum
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatal(err)
	}
	b := make([]byte, 1)
	if _, err := f.ReadAt(b, 9); err != nil {
		t.Fatal(err)
	}
	b[0] ^= 0xFF
	if _, err := f.WriteAt(b, 9); err != nil {
		t.Fatal(err)
	}
	f.Close()

	err = dm.ReadPage(pageId, make([]byte, PageSize))
	if !IsErrorCode(err, ErrCodePageCorrupted) {
		t.Errorf("Expected page corrupted, got %v", err)
	}
}

func TestDiskManagerCloseTwice(t *testing.T) {
	dm, _ := newTestDiskManager(t, CompressionNone)
	if err := dm.Close(); err != nil {
		t.Fatal(err)
	}
	if err := dm.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}
}
