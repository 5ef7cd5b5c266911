package interfaces

import (
	"context"
	"io"
	"net/url"

	"github.com/customeros/feedsync/internal/models"
	"github.com/customeros/feedsync/internal/stream"
)

type ProtocolHandler interface {
	OpenStream(ctx context.Context, uri *url.URL, props *models.ConnectionProperties) (*stream.Stream, error)
	Reload(ctx context.Context, uri *url.URL, props *models.ConnectionProperties) (*models.ReloadResult, error)
	GetFeedIcon(ctx context.Context, uri *url.URL) ([]byte, error)
	GetLabel(ctx context.Context, uri *url.URL) (string, error)
	GetFeed(ctx context.Context, uri *url.URL) (*url.URL, error)
}

type ConnectionService interface {
	CredentialsResolver
	GetHandler(uri *url.URL) (ProtocolHandler, error)
	OpenStream(ctx context.Context, uri *url.URL, props *models.ConnectionProperties) (*stream.Stream, error)
}

// DocumentParser fills doc from r. It returns an *errors.EncodingError when
// the document could not be decoded with the detected encoding.
type DocumentParser interface {
	Interpret(ctx context.Context, r io.Reader, doc *models.FeedDocument, opts models.ParseOptions) error
}
