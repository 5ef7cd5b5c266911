package connection

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/customeros/feedsync/interfaces"
	feedErrors "github.com/customeros/feedsync/internal/errors"
	"github.com/customeros/feedsync/internal/enum"
	"github.com/customeros/feedsync/internal/logger"
	"github.com/customeros/feedsync/internal/models"
	"github.com/customeros/feedsync/internal/stream"
	"github.com/customeros/feedsync/internal/tracing"
	"github.com/customeros/feedsync/services/events"
)

type Option func(*Registry)

// WithHandler registers h for every scheme given.
func WithHandler(h interfaces.ProtocolHandler, schemes ...string) Option {
	return func(r *Registry) {
		for _, scheme := range schemes {
			r.handlers[strings.ToLower(scheme)] = h
		}
	}
}

func WithCredentials(credentials *CredentialsRegistry) Option {
	return func(r *Registry) {
		r.CredentialsRegistry = credentials
	}
}

// Registry is the single entry point for outbound fetches: one handler per
// scheme plus the credentials registry.
type Registry struct {
	*CredentialsRegistry
	handlers map[string]interfaces.ProtocolHandler
	events.BaseEventListener
	log logger.Logger
}

func NewRegistry(log logger.Logger, opts ...Option) *Registry {
	r := &Registry{
		handlers:          make(map[string]interfaces.ProtocolHandler),
		BaseEventListener: events.NewBaseEventListener(log, events.EntitiesDeleted),
		log:               log,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.CredentialsRegistry == nil {
		r.CredentialsRegistry = NewCredentialsRegistry(nil)
	}
	return r
}

func (r *Registry) GetHandler(uri *url.URL) (interfaces.ProtocolHandler, error) {
	if uri == nil || uri.Scheme == "" {
		return nil, &feedErrors.UnknownProtocolError{}
	}
	handler, ok := r.handlers[strings.ToLower(uri.Scheme)]
	if !ok {
		return nil, &feedErrors.UnknownProtocolError{Scheme: uri.Scheme}
	}
	return handler, nil
}

func (r *Registry) OpenStream(ctx context.Context, uri *url.URL, props *models.ConnectionProperties) (*stream.Stream, error) {
	handler, err := r.GetHandler(uri)
	if err != nil {
		return nil, err
	}
	return handler.OpenStream(ctx, uri, props)
}

// Schemes lists the registered handler schemes in order.
func (r *Registry) Schemes() []string {
	out := make([]string, 0, len(r.handlers))
	for scheme := range r.handlers {
		out = append(out, scheme)
	}
	sort.Strings(out)
	return out
}

// Handle removes stored credentials for deleted feeds. Failures are logged
// and never returned to the publisher.
func (r *Registry) Handle(ctx context.Context, event events.Event) error {
	span, ctx := tracing.StartTracerSpan(ctx, "Registry.Handle")
	defer span.Finish()
	tracing.TagComponentListener(span)

	if err := r.ValidateEvent(ctx, event); err != nil {
		r.log.Warnf("Ignoring invalid deletion event: %v", err)
		return nil
	}
	deleted, err := events.DecodeEventData[events.EntitiesDeletedEvent](ctx, event)
	if err != nil {
		tracing.TraceErr(span, err)
		r.log.Warnf("Unable to decode deletion event: %v", err)
		return nil
	}
	if deleted.EntityType != enum.FEED {
		return nil
	}

	for _, link := range deleted.Links {
		r.deleteCredentials(ctx, link)
	}
	return nil
}

func (r *Registry) deleteCredentials(ctx context.Context, link string) {
	span, _ := tracing.StartTracerSpan(ctx, "Registry.deleteCredentials")
	defer span.Finish()
	tracing.TagEntity(span, link)

	uri, err := url.Parse(link)
	if err != nil || uri.Scheme == "" {
		r.log.Warnf("Skipping credential cleanup for invalid link %q", link)
		return
	}
	provider := r.GetCredentialsProvider(uri)
	if provider == nil {
		return
	}
	if err := provider.DeleteAuthCredentials(uri, ""); err != nil {
		tracing.TraceErr(span, err)
		r.log.Errorf("Unable to delete credentials for %s: %v", link, err)
	}
}
