package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// CompressionType selects the algorithm a PageCodec tries first
type CompressionType uint8

const (
	CompressionNone   CompressionType = 0
	CompressionLZ4    CompressionType = 1
	CompressionSnappy CompressionType = 2
)

func (ct CompressionType) String() string {
	switch ct {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionSnappy:
		return "snappy"
	default:
		return fmt.Sprintf("compression(%d)", uint8(ct))
	}
}

// ParseCompressionType parses none, lz4 or snappy
func ParseCompressionType(s string) (CompressionType, error) {
	switch s {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "snappy":
		return CompressionSnappy, nil
	}
	return CompressionNone, fmt.Errorf("unsupported compression %q (must be none, lz4 or snappy)", s)
}

// Slot layout, little endian:
//
//	[0:2]   magic 0xC0DE
//	[2]     algorithm actually used
//	[3]     reserved
//	[4:6]   page size
//	[6:8]   payload length
//	[8:12]  CRC32 (IEEE) of the uncompressed page
//	[12:]   payload
const (
	slotMagic = 0xC0DE

	SlotHeaderSize = 12
	// SlotSize fits a page stored raw plus its header
	SlotSize = PageSize + SlotHeaderSize

	// minSavings is how many bytes compression must save to be kept
	minSavings = 100
)

var errNoSlotHeader = errors.New("slot has no page header")

type slotHeader struct {
	algo     CompressionType
	pageSize uint16
	payload  uint16
	checksum uint32
}

func (h slotHeader) put(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], slotMagic)
	b[2] = uint8(h.algo)
	b[3] = 0
	binary.LittleEndian.PutUint16(b[4:6], h.pageSize)
	binary.LittleEndian.PutUint16(b[6:8], h.payload)
	binary.LittleEndian.PutUint32(b[8:12], h.checksum)
}

func readSlotHeader(b []byte) (slotHeader, error) {
	if len(b) < SlotHeaderSize || binary.LittleEndian.Uint16(b[0:2]) != slotMagic {
		return slotHeader{}, errNoSlotHeader
	}
	h := slotHeader{
		algo:     CompressionType(b[2]),
		pageSize: binary.LittleEndian.Uint16(b[4:6]),
		payload:  binary.LittleEndian.Uint16(b[6:8]),
		checksum: binary.LittleEndian.Uint32(b[8:12]),
	}
	if h.pageSize != PageSize {
		return slotHeader{}, fmt.Errorf("slot holds a %d byte page, expected %d", h.pageSize, PageSize)
	}
	if SlotHeaderSize+int(h.payload) > len(b) {
		return slotHeader{}, fmt.Errorf("payload of %d bytes overruns %d byte slot", h.payload, len(b))
	}
	return h, nil
}

// CodecStats counts what a PageCodec has written
type CodecStats struct {
	Pages      uint64
	Compressed uint64 // pages stored with lz4 or snappy
	LZ4        uint64
	Snappy     uint64
	BytesIn    uint64 // page bytes handed to Encode
	BytesOut   uint64 // slot bytes produced, headers included
}

// Ratio returns page bytes per stored byte
func (s CodecStats) Ratio() float64 {
	if s.BytesOut == 0 {
		return 1.0
	}
	return float64(s.BytesIn) / float64(s.BytesOut)
}

// PageCodec encodes pages into self-describing slots. A page is stored raw
// whenever compression would save fewer than minSavings bytes, so a slot
// never exceeds SlotSize. Slots record the algorithm they were written
// with; any codec can decode any slot.
//
// PageCodec is not safe for concurrent use.
type PageCodec struct {
	algo    CompressionType
	lz4c    lz4.Compressor
	scratch []byte
	stats   CodecStats
}

// NewPageCodec creates a codec that compresses with algo
func NewPageCodec(algo CompressionType) (*PageCodec, error) {
	if algo > CompressionSnappy {
		return nil, fmt.Errorf("unsupported compression type: %d", algo)
	}
	n := max(lz4.CompressBlockBound(PageSize), snappy.MaxEncodedLen(PageSize))
	return &PageCodec{algo: algo, scratch: make([]byte, n)}, nil
}

// Algorithm returns the configured algorithm
func (c *PageCodec) Algorithm() CompressionType {
	return c.algo
}

// Encode writes page into slot and returns how many bytes of slot it used.
// page must be PageSize bytes and slot at least SlotSize.
func (c *PageCodec) Encode(page, slot []byte) (int, error) {
	if len(page) != PageSize {
		return 0, fmt.Errorf("page must be exactly %d bytes, got %d", PageSize, len(page))
	}
	if len(slot) < SlotSize {
		return 0, fmt.Errorf("slot must be at least %d bytes, got %d", SlotSize, len(slot))
	}

	payload, algo, err := c.compress(page)
	if err != nil {
		return 0, err
	}
	if algo == CompressionNone || PageSize-len(payload) < minSavings {
		payload, algo = page, CompressionNone
	}

	slotHeader{
		algo:     algo,
		pageSize: PageSize,
		payload:  uint16(len(payload)),
		checksum: crc32.ChecksumIEEE(page),
	}.put(slot)
	n := SlotHeaderSize + copy(slot[SlotHeaderSize:], payload)

	c.stats.Pages++
	c.stats.BytesIn += PageSize
	c.stats.BytesOut += uint64(n)
	switch algo {
	case CompressionLZ4:
		c.stats.Compressed++
		c.stats.LZ4++
	case CompressionSnappy:
		c.stats.Compressed++
		c.stats.Snappy++
	}
	return n, nil
}

// compress returns the payload for c.algo, backed by c.scratch
func (c *PageCodec) compress(page []byte) ([]byte, CompressionType, error) {
	switch c.algo {
	case CompressionLZ4:
		n, err := c.lz4c.CompressBlock(page, c.scratch)
		if err != nil {
			return nil, 0, fmt.Errorf("lz4 compression failed: %w", err)
		}
		// 0 means incompressible
		if n == 0 {
			return page, CompressionNone, nil
		}
		return c.scratch[:n], CompressionLZ4, nil
	case CompressionSnappy:
		return snappy.Encode(c.scratch, page), CompressionSnappy, nil
	default:
		return page, CompressionNone, nil
	}
}

// Decode restores the page held in slot into page and verifies its checksum.
// Bytes after the payload are ignored.
func (c *PageCodec) Decode(slot, page []byte) error {
	if len(page) != PageSize {
		return fmt.Errorf("page must be exactly %d bytes, got %d", PageSize, len(page))
	}
	h, err := readSlotHeader(slot)
	if err != nil {
		return err
	}
	payload := slot[SlotHeaderSize : SlotHeaderSize+int(h.payload)]

	switch h.algo {
	case CompressionNone:
		if len(payload) != PageSize {
			return fmt.Errorf("raw payload is %d bytes, expected %d", len(payload), PageSize)
		}
		copy(page, payload)
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(payload, page)
		if err != nil {
			return fmt.Errorf("lz4 decompression failed: %w", err)
		}
		if n != PageSize {
			return fmt.Errorf("lz4 produced %d bytes, expected %d", n, PageSize)
		}
	case CompressionSnappy:
		if n, err := snappy.DecodedLen(payload); err != nil || n != PageSize {
			return fmt.Errorf("snappy payload does not decode to a page (len %d): %v", n, err)
		}
		if _, err := snappy.Decode(page, payload); err != nil {
			return fmt.Errorf("snappy decompression failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown algorithm %d in slot header", h.algo)
	}

	if sum := crc32.ChecksumIEEE(page); sum != h.checksum {
		return fmt.Errorf("checksum mismatch: got %08x, expected %08x", sum, h.checksum)
	}
	return nil
}

// Stats returns the counters accumulated by Encode
func (c *PageCodec) Stats() CodecStats {
	return c.stats
}

// HasSlotHeader reports whether b starts with a slot header
func HasSlotHeader(b []byte) bool {
	return len(b) >= 2 && binary.LittleEndian.Uint16(b[0:2]) == slotMagic
}
