// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// artifactGroup collects the artifacts that belong to one hash slot.
type artifactGroup struct {
	key     ArtifactKey
	decoded *Artifact
	raw     []*Artifact
	stored  *Artifact
	deleted bool
}

// AssembleFile rebuilds an archive from srcDir and writes it to path. The
// archive is written to a temporary file in the same directory and renamed
// into place once complete.
func AssembleFile(srcDir, path string, opts *Options) (*Header, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create directory")
	}

	tempFile, err := os.CreateTemp(dir, "mpq_*.tmp")
	if err != nil {
		return nil, errors.Wrap(err, "create temp file")
	}
	tempPath := tempFile.Name()

	header, err := Assemble(srcDir, tempFile, opts)
	if cerr := tempFile.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "close temp file")
	}
	if err != nil {
		os.Remove(tempPath)
		return nil, err
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return nil, errors.Wrap(err, "save archive")
	}

	return header, nil
}

// Assemble rebuilds an archive from an extracted directory: the header
// snapshot plus the artifacts named by the extractor. Decoded files are
// recompressed sector by sector; raw sector artifacts are written back
// unchanged behind their recorded method byte, and stored artifacts are
// copied verbatim with their recorded flags. It returns the final header.
func Assemble(srcDir string, out io.WriteSeeker, opts *Options) (*Header, error) {
	o := opts.withDefaults()
	log := o.Logger

	raw, err := os.ReadFile(filepath.Join(srcDir, o.HeaderName))
	if err != nil {
		return nil, errors.Wrap(err, "read header snapshot")
	}
	header := &Header{}
	if err := header.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	if err := header.validate(); err != nil {
		return nil, err
	}

	groups, err := loadArtifactGroups(filepath.Join(srcDir, o.ArtifactDir), header.HashTableSize)
	if err != nil {
		return nil, err
	}

	if _, err := out.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seek to start")
	}
	if _, err := out.Write(raw); err != nil {
		return nil, errors.Wrap(err, "write header")
	}

	hashTable := make([]HashEntry, header.HashTableSize)
	for i := range hashTable {
		hashTable[i] = emptyHashEntry()
	}

	w := &assembler{
		out:        out,
		codec:      o.Codec,
		sectorSize: header.SectorSize(),
		srcDir:     filepath.Join(srcDir, o.ArtifactDir),
		log:        log,
	}

	for _, g := range groups {
		slot := &hashTable[g.key.HashIndex]
		slot.HashA = g.key.HashA
		slot.HashB = g.key.HashB
		slot.Locale = g.key.Locale
		slot.Platform = g.key.Platform

		if g.deleted {
			slot.BlockIndex = hashTableDeleted
			continue
		}

		slot.BlockIndex = uint32(len(w.blocks))
		if err := w.writeFile(g); err != nil {
			return nil, errors.Wrapf(err, "hash entry %d", g.key.HashIndex)
		}
	}

	hashTableOffset, err := w.tell()
	if err != nil {
		return nil, err
	}
	if err := o.Cipher.writeTable(out, encodeHashTable(hashTable), hashTableKeyName); err != nil {
		return nil, err
	}

	blockTableOffset, err := w.tell()
	if err != nil {
		return nil, err
	}
	if err := o.Cipher.writeTable(out, encodeBlockTable(w.blocks), blockTableKeyName); err != nil {
		return nil, err
	}

	archiveSize, err := w.tell()
	if err != nil {
		return nil, err
	}

	header.HashTableOffset = hashTableOffset
	header.BlockTableOffset = blockTableOffset
	header.BlockTableSize = uint32(len(w.blocks))
	header.ArchiveSize = archiveSize

	encoded, err := header.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if _, err := out.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seek to header")
	}
	if _, err := out.Write(encoded); err != nil {
		return nil, errors.Wrap(err, "write header")
	}
	if _, err := out.Seek(int64(archiveSize), io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seek to end")
	}

	log.WithFields(logrus.Fields{
		"blocks":       len(w.blocks),
		"archive_size": archiveSize,
	}).Info("assembled archive")

	return header, nil
}

// loadArtifactGroups parses every artifact name in dir and groups them by hash
// index, in ascending index order.
func loadArtifactGroups(dir string, hashTableSize uint32) ([]*artifactGroup, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read artifact directory")
	}

	byIndex := make(map[uint32]*artifactGroup)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		art, err := ParseArtifactName(entry.Name())
		if err != nil {
			return nil, err
		}
		if art.Key.HashIndex >= hashTableSize {
			return nil, errors.Wrapf(ErrFormatMismatch, "%s: hash index outside table of %d", art.Name, hashTableSize)
		}

		g, ok := byIndex[art.Key.HashIndex]
		if !ok {
			g = &artifactGroup{key: art.Key}
			byIndex[art.Key.HashIndex] = g
		}
		if g.key != art.Key {
			return nil, errors.Wrapf(ErrFormatMismatch, "%s: conflicts with %s for the same hash index", art.Name, g.key)
		}

		switch art.Kind {
		case ArtifactDeleted:
			g.deleted = true
		case ArtifactRawSector:
			g.raw = append(g.raw, art)
		case ArtifactStored:
			if g.stored != nil {
				return nil, errors.Wrapf(ErrFormatMismatch, "%s: duplicate of %s", art.Name, g.stored.Name)
			}
			g.stored = art
		case ArtifactDecoded:
			if g.decoded != nil {
				return nil, errors.Wrapf(ErrFormatMismatch, "%s: duplicate of %s", art.Name, g.decoded.Name)
			}
			g.decoded = art
		}
	}

	groups := make([]*artifactGroup, 0, len(byIndex))
	for _, g := range byIndex {
		kinds := 0
		for _, present := range []bool{g.deleted, len(g.raw) > 0, g.decoded != nil, g.stored != nil} {
			if present {
				kinds++
			}
		}
		if kinds > 1 {
			return nil, errors.Wrapf(ErrFormatMismatch, "%s: mixes artifact kinds", g.key)
		}
		if err := g.sortRaw(); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].key.HashIndex < groups[j].key.HashIndex
	})
	return groups, nil
}

// sortRaw orders raw sectors by index and checks they form a complete run.
func (g *artifactGroup) sortRaw() error {
	sort.Slice(g.raw, func(i, j int) bool { return g.raw[i].Sector < g.raw[j].Sector })
	for i, art := range g.raw {
		if art.Sector != i {
			return errors.Wrapf(ErrFormatMismatch, "%s: missing sector %d", g.key, i)
		}
		if art.FileSize != g.raw[0].FileSize {
			return errors.Wrapf(ErrFormatMismatch, "%s: inconsistent file size", art.Name)
		}
	}
	return nil
}

// assembler carries the output state across files.
type assembler struct {
	out        io.WriteSeeker
	codec      *Codec
	sectorSize uint32
	srcDir     string
	blocks     []BlockEntry
	log        logrus.FieldLogger
}

func (w *assembler) tell() (uint32, error) {
	pos, err := w.out.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, errors.Wrap(err, "get file position")
	}
	if pos > math.MaxUint32 {
		return 0, errors.Errorf("archive position %d exceeds the 32-bit format", pos)
	}
	return uint32(pos), nil
}

// writeFile writes the offset table and sectors of one group and appends its
// block entry.
func (w *assembler) writeFile(g *artifactGroup) error {
	switch {
	case g.stored != nil:
		return w.writeStored(g)
	case len(g.raw) == 1 && sectorCount(g.raw[0].FileSize, w.sectorSize) != 1:
		// A lone raw sector for a file that would span a different number of
		// sectors came from a single-unit block.
		return w.writeSingleUnit(g)
	}

	filePos, err := w.tell()
	if err != nil {
		return err
	}

	var (
		n        uint32
		fileSize uint32
		src      *os.File
	)
	if len(g.raw) > 0 {
		n = uint32(len(g.raw))
		fileSize = g.raw[0].FileSize
	} else {
		src, err = os.Open(filepath.Join(w.srcDir, g.decoded.Name))
		if err != nil {
			return errors.Wrap(err, "open artifact")
		}
		defer src.Close()

		info, err := src.Stat()
		if err != nil {
			return errors.Wrap(err, "stat artifact")
		}
		if info.Size() > math.MaxUint32 {
			return errors.Errorf("%s is too large for the 32-bit format", g.decoded.Name)
		}
		fileSize = uint32(info.Size())
		n = sectorCount(fileSize, w.sectorSize)
	}

	// Offsets are unknown until the sectors are written.
	offsets := make([]uint32, n+1)
	if _, err := w.out.Write(make([]byte, len(offsets)*4)); err != nil {
		return errors.Wrap(err, "write sector offset table")
	}
	offsets[0] = uint32(len(offsets) * 4)

	chunk := make([]byte, w.sectorSize)
	for j := uint32(0); j < n; j++ {
		var (
			method  byte
			payload []byte
		)
		if len(g.raw) > 0 {
			method = g.raw[j].Method
			payload, err = os.ReadFile(filepath.Join(w.srcDir, g.raw[j].Name))
			if err != nil {
				return errors.Wrap(err, "read raw sector")
			}
		} else {
			size := w.sectorSize
			if rest := fileSize - j*w.sectorSize; rest < size {
				size = rest
			}
			if _, err := io.ReadFull(src, chunk[:size]); err != nil {
				return errors.Wrapf(err, "read %s", g.decoded.Name)
			}
			method = MethodZlib
			payload, err = w.codec.Encode(method, chunk[:size])
			if err != nil {
				return errors.Wrapf(err, "compress sector %d", j)
			}
		}

		if _, err := w.out.Write([]byte{method}); err != nil {
			return errors.Wrap(err, "write sector")
		}
		if _, err := w.out.Write(payload); err != nil {
			return errors.Wrap(err, "write sector")
		}
		offsets[j+1] = offsets[j] + 1 + uint32(len(payload))
	}

	end, err := w.tell()
	if err != nil {
		return err
	}
	table := make([]byte, len(offsets)*4)
	for j, off := range offsets {
		binary.LittleEndian.PutUint32(table[j*4:], off)
	}
	if _, err := w.out.Seek(int64(filePos), io.SeekStart); err != nil {
		return errors.Wrap(err, "seek to sector offset table")
	}
	if _, err := w.out.Write(table); err != nil {
		return errors.Wrap(err, "write sector offset table")
	}
	if _, err := w.out.Seek(int64(end), io.SeekStart); err != nil {
		return errors.Wrap(err, "seek to end")
	}

	w.blocks = append(w.blocks, BlockEntry{
		FilePos:        filePos,
		CompressedSize: offsets[n],
		FileSize:       fileSize,
		Flags:          fileExists | fileCompress,
	})

	w.log.WithFields(logrus.Fields{
		"hash_index": g.key.HashIndex,
		"sectors":    n,
		"raw":        len(g.raw) > 0,
	}).Debug("wrote file")

	return nil
}

// writeSingleUnit writes a lone raw sector as a single-unit block: the method
// byte and payload with no offset table.
func (w *assembler) writeSingleUnit(g *artifactGroup) error {
	art := g.raw[0]
	payload, err := os.ReadFile(filepath.Join(w.srcDir, art.Name))
	if err != nil {
		return errors.Wrap(err, "read raw sector")
	}

	filePos, err := w.tell()
	if err != nil {
		return err
	}
	if _, err := w.out.Write(append([]byte{art.Method}, payload...)); err != nil {
		return errors.Wrap(err, "write single-unit file")
	}
	if _, err := w.tell(); err != nil {
		return err
	}

	w.blocks = append(w.blocks, BlockEntry{
		FilePos:        filePos,
		CompressedSize: uint32(1 + len(payload)),
		FileSize:       art.FileSize,
		Flags:          fileExists | fileCompress | fileSingleUnit,
	})

	w.log.WithField("hash_index", g.key.HashIndex).Debug("wrote single-unit file")
	return nil
}

// writeStored copies the stored bytes of a block back unchanged.
func (w *assembler) writeStored(g *artifactGroup) error {
	data, err := os.ReadFile(filepath.Join(w.srcDir, g.stored.Name))
	if err != nil {
		return errors.Wrap(err, "read stored file")
	}

	filePos, err := w.tell()
	if err != nil {
		return err
	}
	if _, err := w.out.Write(data); err != nil {
		return errors.Wrap(err, "write stored file")
	}
	if _, err := w.tell(); err != nil {
		return err
	}

	w.blocks = append(w.blocks, BlockEntry{
		FilePos:        filePos,
		CompressedSize: uint32(len(data)),
		FileSize:       g.stored.FileSize,
		Flags:          g.stored.Flags,
	})

	w.log.WithFields(logrus.Fields{
		"hash_index": g.key.HashIndex,
		"flags":      g.stored.Flags,
	}).Debug("wrote stored file")
	return nil
}
