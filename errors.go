// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import "github.com/pkg/errors"

// Error kinds. Callers test for them with errors.Is; the returned errors carry
// additional context.
var (
	// ErrCorrupt reports a structural inconsistency in the archive tables,
	// such as a block index outside the block table or a truncated table.
	ErrCorrupt = errors.New("corrupt archive")

	// ErrUnsupportedMethod reports a sector compression mask with a bit no
	// registered transform handles.
	ErrUnsupportedMethod = errors.New("unsupported compression method")

	// ErrFormatMismatch reports an extracted artifact whose name does not
	// follow the artifact naming grammar.
	ErrFormatMismatch = errors.New("artifact name format mismatch")

	// ErrInvalidHeader reports a bad signature or a format version other
	// than the original 32-bit one.
	ErrInvalidHeader = errors.New("invalid archive header")

	// ErrNotFound is returned by Lookup.
	ErrNotFound = errors.New("file not found")
)
