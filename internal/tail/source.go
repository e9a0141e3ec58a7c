package tail

import (
	"io"
	"os"
)

// File is an open handle the engine reads byte ranges from.
type File interface {
	io.ReaderAt
	io.Closer
}

// ByteSource supplies sizes and byte ranges for tracked paths. The host
// provides it so the engine never touches the filesystem directly.
type ByteSource interface {
	Size(path string) (int64, error)
	Open(path string) (File, error)
}

// OSSource reads from the local filesystem.
type OSSource struct{}

func (OSSource) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (OSSource) Open(path string) (File, error) {
	return os.Open(path)
}
