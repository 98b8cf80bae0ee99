package ports

import "io"

// FileSystem is the local storage used for videos and exported frames.
type FileSystem interface {
	// Exists reports whether a local video path is present.
	Exists(path string) (bool, error)

	// WriteFile stores an exported frame, creating parent directories.
	WriteFile(path string, data []byte) error

	// Open opens a local video for random access reads. A missing file
	// is reported as ErrSourceNotFound.
	Open(path string) (io.ReadSeekCloser, error)
}
