// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

// MPQ format constants
const (
	// Magic signature "MPQ\x1A" in little-endian
	mpqMagic = 0x1A51504D

	// Only the original format is handled.
	formatVersion1 = 0

	headerSizeV1   = 0x20
	hashEntrySize  = 16
	blockEntrySize = 16

	// Block table entry flags
	fileImplode      = 0x00000100 // Imploded (PKWARE compression)
	fileCompress     = 0x00000200 // Compressed (multi-algorithm)
	fileCompressMask = 0x0000FF00 // Any compression
	fileEncrypted    = 0x00010000 // Encrypted
	fileFixKey       = 0x00020000 // Key adjusted by block offset
	filePatchFile    = 0x00100000 // Patch file
	fileSingleUnit   = 0x01000000 // Single unit (not split into sectors)
	fileDeleteMarker = 0x02000000 // File is a deletion marker
	fileSectorCRC    = 0x04000000 // Sector CRC values after data
	fileExists       = 0x80000000 // File exists

	// Hash table entry block index sentinels
	hashTableEmpty   = 0xFFFFFFFF
	hashTableDeleted = 0xFFFFFFFE

	defaultSectorSizeShift = 3

	hashTableKeyName  = "(hash table)"
	blockTableKeyName = "(block table)"
)

// Header is the 32-byte archive header.
type Header struct {
	Magic            uint32 // "MPQ\x1A"
	HeaderSize       uint32 // Size of this header
	ArchiveSize      uint32 // Size of the entire archive
	FormatVersion    uint16 // Format version (0 = V1)
	SectorSizeShift  uint16 // Sector size is 512 << SectorSizeShift
	HashTableOffset  uint32 // Offset to hash table from archive start
	BlockTableOffset uint32 // Offset to block table from archive start
	HashTableSize    uint32 // Number of entries in hash table
	BlockTableSize   uint32 // Number of entries in block table
}

// SectorSize returns the logical sector size in bytes.
func (h *Header) SectorSize() uint32 {
	return 512 << h.SectorSizeShift
}

// MarshalBinary encodes the header in its on-disk layout.
func (h *Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, headerSizeV1)
	binary.LittleEndian.PutUint32(b[0:], h.Magic)
	binary.LittleEndian.PutUint32(b[4:], h.HeaderSize)
	binary.LittleEndian.PutUint32(b[8:], h.ArchiveSize)
	binary.LittleEndian.PutUint16(b[12:], h.FormatVersion)
	binary.LittleEndian.PutUint16(b[14:], h.SectorSizeShift)
	binary.LittleEndian.PutUint32(b[16:], h.HashTableOffset)
	binary.LittleEndian.PutUint32(b[20:], h.BlockTableOffset)
	binary.LittleEndian.PutUint32(b[24:], h.HashTableSize)
	binary.LittleEndian.PutUint32(b[28:], h.BlockTableSize)
	return b, nil
}

// UnmarshalBinary decodes a header from its on-disk layout.
func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) < headerSizeV1 {
		return errors.Wrapf(ErrInvalidHeader, "header is %d bytes", len(b))
	}
	h.Magic = binary.LittleEndian.Uint32(b[0:])
	h.HeaderSize = binary.LittleEndian.Uint32(b[4:])
	h.ArchiveSize = binary.LittleEndian.Uint32(b[8:])
	h.FormatVersion = binary.LittleEndian.Uint16(b[12:])
	h.SectorSizeShift = binary.LittleEndian.Uint16(b[14:])
	h.HashTableOffset = binary.LittleEndian.Uint32(b[16:])
	h.BlockTableOffset = binary.LittleEndian.Uint32(b[20:])
	h.HashTableSize = binary.LittleEndian.Uint32(b[24:])
	h.BlockTableSize = binary.LittleEndian.Uint32(b[28:])
	return nil
}

func (h *Header) validate() error {
	if h.Magic != mpqMagic {
		return errors.Wrapf(ErrInvalidHeader, "magic 0x%08X", h.Magic)
	}
	if h.FormatVersion != formatVersion1 {
		return errors.Wrapf(ErrInvalidHeader, "format version %d", h.FormatVersion)
	}
	if h.HashTableSize == 0 || h.HashTableSize&(h.HashTableSize-1) != 0 {
		return errors.Wrapf(ErrInvalidHeader, "hash table size %d is not a power of two", h.HashTableSize)
	}
	return nil
}

// readHeader reads the header at offset 0.
func readHeader(r io.ReaderAt) (*Header, error) {
	b := make([]byte, headerSizeV1)
	if _, err := r.ReadAt(b, 0); err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	h := &Header{}
	if err := h.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return h, nil
}

// HashEntry is one hash table slot.
type HashEntry struct {
	HashA      uint32 // First hash of the file name
	HashB      uint32 // Second hash of the file name
	Locale     uint16 // Locale ID
	Platform   uint16 // Platform ID (0 = default)
	BlockIndex uint32 // Index into the block table, or a sentinel
}

// Empty reports whether the slot has never been used.
func (e *HashEntry) Empty() bool { return e.BlockIndex == hashTableEmpty }

// Deleted reports whether the slot held a file that was removed.
func (e *HashEntry) Deleted() bool { return e.BlockIndex == hashTableDeleted }

func emptyHashEntry() HashEntry {
	return HashEntry{
		HashA:      0xFFFFFFFF,
		HashB:      0xFFFFFFFF,
		Locale:     0xFFFF,
		Platform:   0xFFFF,
		BlockIndex: hashTableEmpty,
	}
}

// BlockEntry is one block table record.
type BlockEntry struct {
	FilePos        uint32 // Offset of the file data from archive start
	CompressedSize uint32 // Stored size
	FileSize       uint32 // Uncompressed file size
	Flags          uint32 // File flags
}

// Compressed reports whether any compression flag is set.
func (b *BlockEntry) Compressed() bool { return b.Flags&fileCompressMask != 0 }

func encodeHashTable(entries []HashEntry) []uint32 {
	words := make([]uint32, len(entries)*4)
	for i, entry := range entries {
		words[i*4] = entry.HashA
		words[i*4+1] = entry.HashB
		words[i*4+2] = uint32(entry.Locale) | (uint32(entry.Platform) << 16)
		words[i*4+3] = entry.BlockIndex
	}
	return words
}

func decodeHashTable(words []uint32) []HashEntry {
	entries := make([]HashEntry, len(words)/4)
	for i := range entries {
		entries[i] = HashEntry{
			HashA:      words[i*4],
			HashB:      words[i*4+1],
			Locale:     uint16(words[i*4+2] & 0xFFFF),
			Platform:   uint16(words[i*4+2] >> 16),
			BlockIndex: words[i*4+3],
		}
	}
	return entries
}

func encodeBlockTable(entries []BlockEntry) []uint32 {
	words := make([]uint32, len(entries)*4)
	for i, entry := range entries {
		words[i*4] = entry.FilePos
		words[i*4+1] = entry.CompressedSize
		words[i*4+2] = entry.FileSize
		words[i*4+3] = entry.Flags
	}
	return words
}

func decodeBlockTable(words []uint32) []BlockEntry {
	entries := make([]BlockEntry, len(words)/4)
	for i := range entries {
		entries[i] = BlockEntry{
			FilePos:        words[i*4],
			CompressedSize: words[i*4+1],
			FileSize:       words[i*4+2],
			Flags:          words[i*4+3],
		}
	}
	return entries
}

// readTable reads count 16-byte records at offset and decrypts them with the
// key derived from keyName.
// A size of -1 means the length of r is unknown.
func (c *Cipher) readTable(r io.ReaderAt, size int64, offset, count uint32, keyName string) ([]uint32, error) {
	end := int64(offset) + int64(count)*16
	if size >= 0 && end > size {
		return nil, errors.Wrapf(ErrCorrupt, "%s of %d entries at offset %d runs past end of archive (%d bytes)",
			keyName, count, offset, size)
	}

	raw := make([]byte, int64(count)*16)
	if _, err := r.ReadAt(raw, int64(offset)); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Wrapf(ErrCorrupt, "%s truncated at offset %d", keyName, offset)
		}
		return nil, errors.Wrapf(err, "read %s", keyName)
	}
	words := bytesToWords(raw)
	c.DecryptBlock(words, c.tableKey(keyName))
	return words, nil
}

// writeTable encrypts words with the key derived from keyName and writes them.
func (c *Cipher) writeTable(w io.Writer, words []uint32, keyName string) error {
	buf := make([]uint32, len(words))
	copy(buf, words)
	c.EncryptBlock(buf, c.tableKey(keyName))
	if _, err := w.Write(wordsToBytes(buf)); err != nil {
		return errors.Wrapf(err, "write %s", keyName)
	}
	return nil
}

// readerSize returns the length of r, or -1 when r cannot report it.
func readerSize(r io.ReaderAt) int64 {
	switch v := r.(type) {
	case interface{ Size() int64 }:
		return v.Size()
	case interface{ Stat() (os.FileInfo, error) }:
		if info, err := v.Stat(); err == nil {
			return info.Size()
		}
	}
	return -1
}
