package stream

import (
	"context"
	"io"

	"github.com/pkg/errors"

	feedErrors "github.com/customeros/feedsync/internal/errors"
	"github.com/customeros/feedsync/internal/models"
)

type Opener func(ctx context.Context) (*Stream, error)

type Interpreter func(ctx context.Context, r io.Reader, doc *models.FeedDocument, opts models.ParseOptions) error

// Reload opens a stream and hands it to interpret. When the parser reports an
// encoding problem the stream is reopened once and parsed with
// fallbackEncoding forced.
func Reload(ctx context.Context, open Opener, interpret Interpreter, fallbackEncoding string) (*models.ReloadResult, error) {
	if interpret == nil {
		return nil, feedErrors.ErrNoParser
	}

	result, err := parseOnce(ctx, open, interpret, "")
	if err == nil || !feedErrors.IsEncodingError(err) {
		return result, err
	}

	return parseOnce(ctx, open, interpret, fallbackEncoding)
}

func parseOnce(ctx context.Context, open Opener, interpret Interpreter, forcedEncoding string) (*models.ReloadResult, error) {
	s, err := open(ctx)
	if err != nil {
		return nil, err
	}

	doc := &models.FeedDocument{}
	opts := models.ParseOptions{ForcedEncoding: forcedEncoding, BaseURI: s.URI()}

	if err := interpret(ctx, s, doc, opts); err != nil {
		s.Abort()
		if feedErrors.IsEncodingError(err) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to interpret feed")
	}
	_ = s.Close()

	return &models.ReloadResult{
		Document:       doc,
		ConditionalGet: s.ConditionalGet(),
		FinalURI:       s.URI(),
	}, nil
}
