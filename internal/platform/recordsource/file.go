package recordsource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileSource reads the record blob from a local JSON file, for development
// and the one-shot CLI. The file's content is returned for any requested
// encounter; files holding a JSON array are passed through as-is and the
// decoder takes the first element.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) Fetch(ctx context.Context, cpmrn string, encounter int) (json.RawMessage, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.Path)
		}
		return nil, fmt.Errorf("read record file: %w", err)
	}
	return json.RawMessage(data), nil
}
