// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"regexp"
)

const sniffLen = 10

func magic(p string) func([]byte) bool {
	return func(b []byte) bool { return bytes.HasPrefix(b, []byte(p)) }
}

// Go regexps match UTF-8, so binary signatures are plain prefix tests.
var printable = regexp.MustCompile(`^[!-~\s]+$`)

// extSignatures is checked in order against the first bytes of a file.
var extSignatures = []struct {
	match func([]byte) bool
	ext   string
}{
	{magic("RIFF"), "wav"},
	{func(b []byte) bool { return bytes.HasPrefix(b, []byte("<htm")) || bytes.HasPrefix(b, []byte("<HTM")) }, "html"},
	{magic("Woo!"), "tbl"},
	{func(b []byte) bool { return len(b) >= 4 && bytes.HasPrefix(b, []byte("BLP")) && b[3] >= '0' && b[3] <= '2' }, "blp"},
	{magic("MDLX"), "mdx"},
	{magic("GIF8"), "gif"},
	{magic("\xFF\xD8\xFF\xE0"), "jpg"},
	{magic("\x1BLua"), "lua"},
	{magic("DDS "), "dds"},
	{magic("fLaC"), "flac"},
	{func(b []byte) bool {
		return len(b) >= 2 && b[0] == 0xFF && (b[1] == 0xF2 || b[1] == 0xF3 || b[1] == 0xFB) ||
			bytes.Contains(b, []byte("ID3"))
	}, "mp3"},
	{magic("W3do"), "doo"},
	{magic("W3E!"), "w3e"},
	{magic("MP3W"), "wpm"},
	{magic("WTG!"), "wtg"},
	{printable.Match, "txt"},
}

// guessExt picks a file extension from the leading bytes of data.
func guessExt(data []byte) string {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	for _, sig := range extSignatures {
		if sig.match(data) {
			return sig.ext
		}
	}
	return "bin"
}
