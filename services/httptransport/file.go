package httptransport

import (
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	feedErrors "github.com/customeros/feedsync/internal/errors"
	"github.com/customeros/feedsync/internal/models"
	"github.com/customeros/feedsync/internal/stream"
)

func filePath(uri *url.URL) string {
	if uri.Opaque != "" {
		return uri.Opaque
	}
	if uri.Host != "" && uri.Host != "localhost" {
		return "//" + uri.Host + uri.Path
	}
	return uri.Path
}

// openFile serves file: URIs. The modification time doubles as the
// Last-Modified validator.
func (h *Handler) openFile(uri *url.URL, props *models.ConnectionProperties) (*stream.Stream, error) {
	path := filePath(uri)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, feedErrors.NewConnectionError("File not found", err)
	}
	if err != nil {
		return nil, feedErrors.NewConnectionError("Unable to open file", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, feedErrors.NewConnectionError("Unable to open file", err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, feedErrors.NewConnectionError("Not a file", nil)
	}

	lastModified := info.ModTime().UTC().Format(http.TimeFormat)
	if props.ConditionalGet != nil && props.ConditionalGet.LastModified == lastModified {
		_ = f.Close()
		return nil, &feedErrors.NotModifiedError{URI: uri.String()}
	}

	s, err := stream.New(f, stream.Options{
		URI:            uri,
		ContentType:    mime.TypeByExtension(filepath.Ext(path)),
		ContentLength:  info.Size(),
		ConditionalGet: models.NewConditionalGetToken(uri.String(), lastModified, ""),
	})
	if err != nil {
		return nil, feedErrors.NewConnectionError("Unable to read file", err)
	}
	return s, nil
}
