// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Archive is an MPQ archive opened for reading. Its tables are loaded and
// decrypted once by Open and held in memory until Close.
type Archive struct {
	file       *os.File
	r          io.ReaderAt
	size       int64 // -1 when unknown
	cipher     *Cipher
	header     *Header
	hashTable  []HashEntry
	blockTable []BlockEntry
	sectorSize uint32
}

// Open opens an archive file and loads its tables.
func Open(path string, cipher *Cipher) (*Archive, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open archive")
	}

	a, err := NewArchive(file, cipher)
	if err != nil {
		file.Close()
		return nil, err
	}
	a.file = file
	return a, nil
}

// NewArchive loads the header and tables from r. A nil cipher selects the
// package default.
func NewArchive(r io.ReaderAt, cipher *Cipher) (*Archive, error) {
	if cipher == nil {
		cipher = defaultCipher()
	}

	header, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if err := header.validate(); err != nil {
		return nil, err
	}

	size := readerSize(r)

	hashWords, err := cipher.readTable(r, size, header.HashTableOffset, header.HashTableSize, hashTableKeyName)
	if err != nil {
		return nil, err
	}

	blockWords, err := cipher.readTable(r, size, header.BlockTableOffset, header.BlockTableSize, blockTableKeyName)
	if err != nil {
		return nil, err
	}

	return &Archive{
		r:          r,
		size:       size,
		cipher:     cipher,
		header:     header,
		hashTable:  decodeHashTable(hashWords),
		blockTable: decodeBlockTable(blockWords),
		sectorSize: header.SectorSize(),
	}, nil
}

// Header returns a copy of the archive header.
func (a *Archive) Header() Header { return *a.header }

// HashTable returns the decrypted hash table.
func (a *Archive) HashTable() []HashEntry { return a.hashTable }

// BlockTable returns the decrypted block table.
func (a *Archive) BlockTable() []BlockEntry { return a.blockTable }

// SectorSize returns the archive's logical sector size.
func (a *Archive) SectorSize() uint32 { return a.sectorSize }

// Lookup finds name in the hash table and returns its slot index and block.
// The probe continues past deleted slots and stops at the first never-used
// slot.
func (a *Archive) Lookup(name string) (int, *BlockEntry, error) {
	h := a.cipher.HashName(name)
	size := a.header.HashTableSize
	start := h.Index % size

	for i := uint32(0); i < size; i++ {
		idx := (start + i) % size
		entry := &a.hashTable[idx]

		if entry.Empty() {
			break
		}
		if entry.Deleted() {
			continue
		}
		if entry.HashA == h.NameA && entry.HashB == h.NameB {
			if entry.BlockIndex >= uint32(len(a.blockTable)) {
				return 0, nil, errors.Wrapf(ErrCorrupt, "%s: block index %d out of range", name, entry.BlockIndex)
			}
			return int(idx), &a.blockTable[entry.BlockIndex], nil
		}
	}

	return 0, nil, errors.Wrap(ErrNotFound, name)
}

// Close releases the underlying file when the archive was opened by path.
func (a *Archive) Close() error {
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}

// NewHeader returns a header for an empty archive whose hash table can hold
// maxFiles entries at a 2/3 load factor. It is the starting point for
// assembling an archive that was never extracted.
func NewHeader(maxFiles int, sectorSizeShift uint16) *Header {
	hashTableSize := nextPowerOf2(uint32(float64(maxFiles) * 1.5))
	if hashTableSize < 16 {
		hashTableSize = 16
	}

	return &Header{
		Magic:           mpqMagic,
		HeaderSize:      headerSizeV1,
		FormatVersion:   formatVersion1,
		SectorSizeShift: sectorSizeShift,
		HashTableSize:   hashTableSize,
	}
}

// nextPowerOf2 returns the smallest power of 2 >= n.
func nextPowerOf2(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}
