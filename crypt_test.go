// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashString(t *testing.T) {
	c := NewCipher()

	// MPQ_KEY_HASH_TABLE and MPQ_KEY_BLOCK_TABLE from StormLib.h
	require.Equal(t, uint32(0xC3AF3770), c.HashString("(hash table)", hashTypeFileKey))
	require.Equal(t, uint32(0xEC83B3A3), c.HashString("(block table)", hashTypeFileKey))
	require.Equal(t, uint32(0xC3AF3770), c.tableKey(hashTableKeyName))
	require.Equal(t, uint32(0xEC83B3A3), c.tableKey(blockTableKeyName))
}

func TestHashName(t *testing.T) {
	c := NewCipher()

	tests := []struct {
		name  string
		input string
		want  NameHash
	}{
		{
			name:  "StormLib test file path",
			input: "ReplaceableTextures\\CommandButtons\\BTNHaboss79.blp",
			want:  NameHash{Index: 0x7365B3E7, NameA: 0x8BD6929A, NameB: 0xFD55129B},
		},
		{
			name:  "forward slashes",
			input: "ReplaceableTextures/CommandButtons/BTNHaboss79.blp",
			want:  NameHash{Index: 0x7365B3E7, NameA: 0x8BD6929A, NameB: 0xFD55129B},
		},
		{
			name:  "lowercase",
			input: "replaceabletextures\\commandbuttons\\btnhaboss79.blp",
			want:  NameHash{Index: 0x7365B3E7, NameA: 0x8BD6929A, NameB: 0xFD55129B},
		},
		{
			name:  "map script",
			input: "war3map.j",
			want:  NameHash{Index: 0x0CCA3BE6, NameA: 0xC99707E7, NameB: 0x95B8144E},
		},
		{
			name:  "listfile",
			input: "(listfile)",
			want:  NameHash{Index: 0x5F3DE859, NameA: 0xFD657910, NameB: 0x4E9B98A7},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.HashName(tc.input))
		})
	}
}

func TestHashStringCaseAndSlashInsensitive(t *testing.T) {
	c := NewCipher()
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 500; i++ {
		b := make([]byte, 1+rng.Intn(40))
		for j := range b {
			b[j] = byte(0x20 + rng.Intn(0x5F))
		}
		s := string(b)
		folded := strings.ReplaceAll(strings.ToUpper(s), "/", "\\")

		for _, kind := range []uint32{hashTypeTableOffset, hashTypeNameA, hashTypeNameB, hashTypeFileKey} {
			require.Equal(t, c.HashString(folded, kind), c.HashString(s, kind), "input %q kind 0x%X", s, kind)
		}
	}
}

func TestHashStringHighBytes(t *testing.T) {
	c := NewCipher()

	// Bytes >= 0x80 index the table as unsigned values.
	name := "Units\\\xC7\xD1\xB1\xDB.mdx"
	assert.Equal(t, c.HashString(name, hashTypeNameA), c.HashString(name, hashTypeNameA))
	assert.NotEqual(t, c.HashString(name, hashTypeNameA), c.HashString("Units\\.mdx", hashTypeNameA))
}

func TestCryptTableColumnZero(t *testing.T) {
	c := NewCipher()

	// The first five draw pairs of the generator fill column 0.
	seed := uint32(0x00100001)
	next := func() uint32 {
		seed = (seed*125 + 3) % 0x2AAAAB
		return seed & 0xFFFF
	}
	for _, idx := range []int{0x000, 0x100, 0x200, 0x300, 0x400} {
		hi := next()
		lo := next()
		require.Equal(t, hi<<16|lo, c.table[idx], "table[0x%03X]", idx)
	}

	assert.Equal(t, uint32(0x55C636E2), c.table[0x000])
	assert.Equal(t, uint32(0x76F8C1B1), c.table[0x100])
	assert.Equal(t, uint32(0x3DF6965D), c.table[0x200])
	assert.Equal(t, uint32(0x15F261D3), c.table[0x300])
	assert.Equal(t, uint32(0x193AA698), c.table[0x400])
	assert.Equal(t, uint32(0x02BE0170), c.table[0x001])
	assert.Equal(t, uint32(0x7303286C), c.table[0x4FF])
}

func TestCryptTableInitialization(t *testing.T) {
	c := NewCipher()
	table := c.Table()
	require.Len(t, table, 0x500)

	seed := uint32(0x00100001)
	for index1 := 0; index1 < 0x100; index1++ {
		index2 := index1
		for i := 0; i < 5; i++ {
			seed = (seed*125 + 3) % 0x2AAAAB
			temp1 := (seed & 0xFFFF) << 0x10
			seed = (seed*125 + 3) % 0x2AAAAB
			temp2 := seed & 0xFFFF

			require.Equal(t, temp1|temp2, table[index2], "table[0x%03X]", index2)
			index2 += 0x100
		}
	}

	// Table returns a copy.
	table[0] = 0
	assert.Equal(t, uint32(0x55C636E2), c.table[0])
}

func TestEncryptBlockKnownAnswer(t *testing.T) {
	c := NewCipher()

	data := []uint32{0x12345678, 0xDEADBEEF, 0x00000000, 0xFFFFFFFF}
	c.EncryptBlock(data, 0xC3AF3770)
	require.Equal(t, []uint32{0x940899B4, 0xA4ACC3BF, 0x97FD70CC, 0xC4451308}, data)

	c.DecryptBlock(data, 0xC3AF3770)
	require.Equal(t, []uint32{0x12345678, 0xDEADBEEF, 0x00000000, 0xFFFFFFFF}, data)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := NewCipher()
	rng := rand.New(rand.NewSource(7))

	testCases := []struct {
		name string
		data []uint32
		key  uint32
	}{
		{"hash table key", []uint32{0x12345678, 0xDEADBEEF, 0xCAFEBABE, 0xF00DF00D}, c.tableKey(hashTableKeyName)},
		{"block table key", []uint32{0x11111111, 0x22222222, 0x33333333, 0x44444444}, c.tableKey(blockTableKeyName)},
		{"single value", []uint32{0xABCDEF01}, 0},
		{"zeros", make([]uint32, 64), 0xFFFFFFFF},
		{"empty", []uint32{}, 0x1234},
	}
	for i := 0; i < 20; i++ {
		data := make([]uint32, rng.Intn(256))
		for j := range data {
			data[j] = rng.Uint32()
		}
		testCases = append(testCases, struct {
			name string
			data []uint32
			key  uint32
		}{"random", data, rng.Uint32()})
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data := make([]uint32, len(tc.data))
			copy(data, tc.data)

			c.EncryptBlock(data, tc.key)
			if len(data) > 1 {
				assert.NotEqual(t, tc.data, data)
			}
			c.DecryptBlock(data, tc.key)
			require.Equal(t, tc.data, data)

			// Decrypting first also inverts.
			c.DecryptBlock(data, tc.key)
			c.EncryptBlock(data, tc.key)
			require.Equal(t, tc.data, data)
		})
	}
}

func TestWordsBytesRoundTrip(t *testing.T) {
	b := []byte{0x01, 0x02, 0x03, 0x04, 0xFF, 0xFE, 0xFD, 0xFC}
	words := bytesToWords(b)
	require.Equal(t, []uint32{0x04030201, 0xFCFDFEFF}, words)
	require.Equal(t, b, wordsToBytes(words))
}
