package pipeline

import "errors"

var (
	// ErrNoPages means the upstream payload had no page list for the
	// chapter. Terminal; nothing is cached.
	ErrNoPages = errors.New("no page data for chapter")

	// ErrEmptyArtifact means every page download failed, leaving
	// nothing to assemble. Terminal; nothing is cached.
	ErrEmptyArtifact = errors.New("no pages could be downloaded")

	// ErrArtifactTooLarge means the assembled document exceeds the
	// delivery channel's hard byte ceiling. Terminal; nothing is
	// cached, so no transcoding work is wasted on a chapter that would
	// be rejected downstream anyway.
	ErrArtifactTooLarge = errors.New("assembled artifact exceeds size limit")
)
