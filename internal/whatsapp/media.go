package whatsapp

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"
)

type media struct {
	Data     []byte
	Mimetype string
}

// loadMedia returns nil when path is empty or does not point to a readable
// image, in which case the message goes out as plain text.
func loadMedia(path string) (*media, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read media %s: %w", path, err)
	}

	mimetype := http.DetectContentType(data)
	if !strings.HasPrefix(mimetype, "image/") {
		return nil, nil
	}

	return &media{Data: data, Mimetype: mimetype}, nil
}
