package ports

import "context"

// Navigator moves the visitor to another page when an End node redirects.
type Navigator interface {
	Navigate(ctx context.Context, sessionID, url string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, sessionID, url string) error

func (f NavigatorFunc) Navigate(ctx context.Context, sessionID, url string) error {
	return f(ctx, sessionID, url)
}

// MediaResolver turns the stored media URL of a Media node into the URL shown
// to the visitor, e.g. a presigned object storage link.
type MediaResolver interface {
	Resolve(ctx context.Context, raw string) (string, error)
}
