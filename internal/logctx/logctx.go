// Package logctx enriches slog records with request and emission context
// carried on the context.Context of the call.
package logctx

import (
	"context"
	"log/slog"
)

type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("method", rd.Method),
			slog.String("user_agent", rd.UserAgent),
			slog.String("remote_addr", rd.RemoteAddr),
			slog.String("path", rd.Path),
		))
	}

	if fd, ok := ctx.Value(feedDataKey{}).(*FeedData); ok {
		r.AddAttrs(slog.Group("feed",
			slog.String("name", fd.Feed),
			slog.String("emission_id", fd.EmissionID),
			slog.String("user_id", fd.UserID),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type requestDataKey struct{}

type RequestData struct {
	RequestID  string
	Method     string
	UserAgent  string
	RemoteAddr string
	Path       string
}

func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

type feedDataKey struct{}

// FeedData identifies one feed emission: the feed being streamed and the
// unique ID assigned to this client's stream.
type FeedData struct {
	Feed       string
	EmissionID string
	UserID     string
}

func WithFeedData(ctx context.Context, data *FeedData) context.Context {
	return context.WithValue(ctx, feedDataKey{}, data)
}
