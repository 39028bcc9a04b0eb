// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func quietOptions() *Options {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Options{Logger: logger}
}

// fixture is an extracted directory built by hand.
type fixture struct {
	dir    string
	header *Header
}

func newFixture(t *testing.T, maxFiles int, sectorSizeShift uint16) *fixture {
	t.Helper()

	dir := t.TempDir()
	header := NewHeader(maxFiles, sectorSizeShift)
	raw, err := header.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultHeaderName), raw, 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, DefaultArtifactDir), 0755))

	return &fixture{dir: dir, header: header}
}

func (f *fixture) add(t *testing.T, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, DefaultArtifactDir, name), data, 0644))
}

// assemble builds the fixture into an archive and returns its path.
func (f *fixture) assemble(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.mpq")
	_, err := AssembleFile(f.dir, path, quietOptions())
	require.NoError(t, err)
	return path
}

func testKey(index uint32) ArtifactKey {
	return ArtifactKey{
		HashIndex: index,
		HashA:     0xA0000000 | index,
		HashB:     0xB0000000 | index,
		Locale:    0x0409,
	}
}

// readArtifacts maps artifact names in an extracted directory to contents.
func readArtifacts(t *testing.T, dir string) map[string][]byte {
	t.Helper()

	entries, err := os.ReadDir(filepath.Join(dir, DefaultArtifactDir))
	require.NoError(t, err)

	out := make(map[string][]byte, len(entries))
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(dir, DefaultArtifactDir, entry.Name()))
		require.NoError(t, err)
		out[entry.Name()] = data
	}
	return out
}

func artifactNames(m map[string][]byte) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// rewriteTables lets a test corrupt the tables of an archive in place. The
// table sizes must not change.
func rewriteTables(t *testing.T, path string, edit func(hashTable []HashEntry, blockTable []BlockEntry)) {
	t.Helper()

	a, err := Open(path, nil)
	require.NoError(t, err)
	header := a.Header()
	hashTable := append([]HashEntry(nil), a.HashTable()...)
	blockTable := append([]BlockEntry(nil), a.BlockTable()...)
	require.NoError(t, a.Close())

	edit(hashTable, blockTable)

	c := defaultCipher()
	var hashBuf, blockBuf bytes.Buffer
	require.NoError(t, c.writeTable(&hashBuf, encodeHashTable(hashTable), hashTableKeyName))
	require.NoError(t, c.writeTable(&blockBuf, encodeBlockTable(blockTable), blockTableKeyName))

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer file.Close()
	_, err = file.WriteAt(hashBuf.Bytes(), int64(header.HashTableOffset))
	require.NoError(t, err)
	_, err = file.WriteAt(blockBuf.Bytes(), int64(header.BlockTableOffset))
	require.NoError(t, err)
}

// buildArchive lays out a header, data and both tables by hand. Data starts
// right after the header.
func buildArchive(t *testing.T, sectorSizeShift uint16, hashTable []HashEntry, blockTable []BlockEntry, data []byte) string {
	t.Helper()

	c := defaultCipher()
	header := &Header{
		Magic:           mpqMagic,
		HeaderSize:      headerSizeV1,
		SectorSizeShift: sectorSizeShift,
		HashTableSize:   uint32(len(hashTable)),
		BlockTableSize:  uint32(len(blockTable)),
	}

	var body bytes.Buffer
	body.Write(data)
	header.HashTableOffset = uint32(headerSizeV1 + body.Len())
	require.NoError(t, c.writeTable(&body, encodeHashTable(hashTable), hashTableKeyName))
	header.BlockTableOffset = uint32(headerSizeV1 + body.Len())
	require.NoError(t, c.writeTable(&body, encodeBlockTable(blockTable), blockTableKeyName))
	header.ArchiveSize = uint32(headerSizeV1 + body.Len())

	raw, err := header.MarshalBinary()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "hand.mpq")
	require.NoError(t, os.WriteFile(path, append(raw, body.Bytes()...), 0644))
	return path
}

func emptyHashTable(size int) []HashEntry {
	table := make([]HashEntry, size)
	for i := range table {
		table[i] = emptyHashEntry()
	}
	return table
}
