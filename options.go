// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import "github.com/sirupsen/logrus"

const (
	// DefaultHeaderName is the header snapshot file in an extracted directory.
	DefaultHeaderName = "header.bin"

	// DefaultArtifactDir holds the anonymous artifacts of an extraction.
	DefaultArtifactDir = "contents_anonymous"
)

// Options configures Extract and Assemble. The zero value is usable.
type Options struct {
	// Logger receives progress and warnings. Nil means the logrus standard
	// logger.
	Logger logrus.FieldLogger

	// Cipher is shared across operations. Nil means a package default built
	// on first use.
	Cipher *Cipher

	// Codec handles sector compression. Nil means StandardCodec.
	Codec *Codec

	HeaderName  string
	ArtifactDir string

	// SkipOutOfRange makes Extract skip a hash entry whose block index lies
	// outside the block table instead of aborting the remaining scan.
	SkipOutOfRange bool
}

func (o *Options) withDefaults() Options {
	var out Options
	if o != nil {
		out = *o
	}
	if out.Logger == nil {
		out.Logger = logrus.StandardLogger()
	}
	if out.Cipher == nil {
		out.Cipher = defaultCipher()
	}
	if out.Codec == nil {
		out.Codec = StandardCodec()
	}
	if out.HeaderName == "" {
		out.HeaderName = DefaultHeaderName
	}
	if out.ArtifactDir == "" {
		out.ArtifactDir = DefaultArtifactDir
	}
	return out
}
