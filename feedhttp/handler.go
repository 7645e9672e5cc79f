package feedhttp

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	feedwire "github.com/feedwire/feedwire-go"
	"github.com/feedwire/feedwire-go/auth"
	"github.com/feedwire/feedwire-go/broker"
	"github.com/feedwire/feedwire-go/internal/cursor"
	"github.com/feedwire/feedwire-go/internal/logctx"
)

var (
	jsonMediaType    = contenttype.NewMediaType("application/json")
	ndjsonMediaType  = contenttype.NewMediaType("application/x-ndjson")
	streamMediaTypes = []contenttype.MediaType{jsonMediaType, ndjsonMediaType}
)

const (
	authorizationHeader   = "Authorization"
	wwwAuthenticateHeader = "WWW-Authenticate"

	maxEventBytes = 1 << 20
)

// writeJSONError emits a minimal JSON body for transport-level rejections.
// Shape: {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	if ct := w.Header().Get("Content-Type"); ct == "" || ct == jsonMediaType.String() {
		w.Header().Set("Content-Type", jsonMediaType.String())
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// Option configures the Handler.
type Option func(*newConfig)

type newConfig struct {
	logger        *slog.Logger
	authenticator auth.Authenticator
	realm         string
	writeScope    string
	cursorKid     string
	cursorKey     ed25519.PrivateKey
}

// WithLogger sets the slog logger used by the handler. Defaults to
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *newConfig) { c.logger = l }
}

// WithAuthenticator requires bearer authentication on every endpoint.
// Without it all endpoints are anonymous.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(c *newConfig) { c.authenticator = a }
}

// WithRealm sets the HTTP authentication realm advertised in
// WWW-Authenticate challenges. If empty (default) the realm attribute is
// omitted per RFC 6750.
func WithRealm(realm string) Option {
	return func(c *newConfig) { c.realm = strings.TrimSpace(realm) }
}

// WithWriteScope gates the mutating endpoints (feed creation, publishing,
// deletion) behind the named OAuth scope. Only meaningful together with
// WithAuthenticator.
func WithWriteScope(scope string) Option {
	return func(c *newConfig) { c.writeScope = scope }
}

// WithCursorKey provides the Ed25519 key used to sign resume cursors. All
// nodes of a deployment must share it for cursors to roam. Without it a
// fresh ephemeral key is generated and cursors die with the process.
func WithCursorKey(kid string, priv ed25519.PrivateKey) Option {
	return func(c *newConfig) { c.cursorKid = kid; c.cursorKey = priv }
}

// Handler serves feeds over HTTP as incrementally written JSON arrays or
// NDJSON streams.
type Handler struct {
	mux      *http.ServeMux
	log      *slog.Logger
	reg      *Registry
	auth     auth.Authenticator
	realm    string
	wrScope  string
	cursors  cursor.Codec
	lifetime context.Context
}

// lockedWriteFlusher wraps an io.Writer + http.Flusher with a mutex and an
// optional context. It serializes concurrent writes/flushes and avoids
// writing after ctx is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// Re-check after acquiring the lock to minimize races with cancellation
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

// New constructs a Handler serving reg under the path of publicEndpoint.
//
// ctx is the handler's lifetime: when it is canceled, in-flight emissions
// stop (their streams are simply left unterminated, exactly as on peer
// disconnect) and the handler drains.
func New(ctx context.Context, publicEndpoint string, reg *Registry, opts ...Option) (*Handler, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	baseURL, err := url.Parse(publicEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint URL %q: %w", publicEndpoint, err)
	}
	if baseURL.Scheme != "https" && baseURL.Scheme != "http" {
		return nil, fmt.Errorf("endpoint URL must use HTTP or HTTPS scheme, got %q", baseURL.Scheme)
	}

	cfg := &newConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	var cursors *cursor.MemoryCodec
	if cfg.cursorKey != nil {
		cursors = cursor.NewMemoryCodec()
		cursors.AddEd25519Key(cfg.cursorKid, cfg.cursorKey)
		if err := cursors.SetActive(cfg.cursorKid); err != nil {
			return nil, err
		}
	} else {
		cursors, err = cursor.NewEphemeralCodec()
		if err != nil {
			return nil, err
		}
	}

	h := &Handler{
		log:      slog.New(logctx.Handler{Handler: cfg.logger.Handler()}),
		reg:      reg,
		auth:     cfg.authenticator,
		realm:    cfg.realm,
		wrScope:  cfg.writeScope,
		cursors:  cursors,
		lifetime: ctx,
	}

	base := pathOnly(baseURL)
	sub := func(suffix string) string {
		if base == "/" {
			return "/" + suffix
		}
		return base + "/" + suffix
	}
	catalogPath := base
	if base == "/" {
		catalogPath = "/{$}"
	}

	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("GET %s", catalogPath), h.handleGetCatalog)
	mux.HandleFunc(fmt.Sprintf("POST %s", catalogPath), h.handleCreateFeed)
	mux.HandleFunc(fmt.Sprintf("GET %s", sub("{feed}")), h.handleStreamFeed)
	mux.HandleFunc(fmt.Sprintf("DELETE %s", sub("{feed}")), h.handleDeleteFeed)
	mux.HandleFunc(fmt.Sprintf("POST %s", sub("{feed}/events")), h.handlePublishEvent)
	mux.HandleFunc(fmt.Sprintf("GET %s", sub("{feed}/cursor")), h.handleMintCursor)
	mux.HandleFunc(fmt.Sprintf("GET %s", sub("{feed}/schema")), h.handleGetSchema)
	h.mux = mux
	return h, nil
}

// pathOnly returns just the URL path or "/" if empty.
func pathOnly(u *url.URL) string {
	if u == nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// handleGetCatalog streams the feed catalog as a JSON array, using the same
// emitter as the feed streams themselves.
func (h *Handler) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if _, ok := h.checkAuthentication(ctx, r, w); !ok {
		return
	}

	descs, err := h.reg.List(ctx)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to list feeds")
		h.log.ErrorContext(ctx, "catalog.list.fail", slog.String("err", err.Error()))
		return
	}

	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)

	outcome, err := feedwire.Emit(ctx, w, feedwire.SliceSource(descs...), nil)
	if err != nil {
		h.log.ErrorContext(ctx, "catalog.emit.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "catalog.emit.ok",
		slog.String("outcome", outcome.String()),
		slog.Duration("dur", time.Since(start)))
}

// handleStreamFeed streams one feed to the client. The response is either a
// single JSON array of bare items (application/json) or one {"id","data"}
// envelope per line (application/x-ndjson, resumable). The emission ends
// when the source exhausts, the peer disconnects, the optional ?timeout=
// deadline passes, or the handler shuts down; on every abnormal end the
// stream is simply left unterminated.
func (h *Handler) handleStreamFeed(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	accepted, _, err := contenttype.GetAcceptableMediaType(r, streamMediaTypes)
	if err != nil {
		writeJSONError(w, http.StatusNotAcceptable, "accept must allow application/json or application/x-ndjson")
		h.log.WarnContext(ctx, "accept.unsupported", slog.String("accept", r.Header.Get("Accept")))
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		h.log.ErrorContext(ctx, "stream.flusher.missing")
		return
	}

	userInfo, ok := h.checkAuthentication(ctx, r, w)
	if !ok {
		return
	}

	feedName := r.PathValue("feed")
	feed, err := h.reg.Lookup(ctx, feedName)
	if err != nil {
		h.writeRegistryError(ctx, w, err)
		return
	}

	after, ok := h.resolveResumePosition(ctx, w, r, feedName, userID(userInfo))
	if !ok {
		return
	}

	cancelOpts := []feedwire.CancelOption{feedwire.WithStopContext(h.lifetime)}
	if tq := r.URL.Query().Get("timeout"); tq != "" {
		d, err := time.ParseDuration(tq)
		if err != nil || d <= 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid timeout")
			return
		}
		cancelOpts = append(cancelOpts, feedwire.WithTimeout(d))
	}
	ctx, cancel := feedwire.MergeCancel(ctx, cancelOpts...)
	defer cancel()

	ctx = logctx.WithFeedData(ctx, &logctx.FeedData{
		Feed:       feedName,
		EmissionID: uuid.NewString(),
		UserID:     userID(userInfo),
	})

	events, err := feed.Events(ctx, after)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to open feed")
		h.log.ErrorContext(ctx, "stream.open.fail", slog.String("err", err.Error()))
		return
	}
	defer func() {
		if err := events.Close(); err != nil {
			h.log.WarnContext(ctx, "stream.source.close.fail", slog.String("err", err.Error()))
		}
	}()

	w.Header().Set("Content-Type", accepted.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()

	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}

	h.log.InfoContext(ctx, "stream.start", slog.String("media_type", accepted.String()))

	var outcome feedwire.Outcome
	if accepted.Matches(ndjsonMediaType) {
		outcome, err = feedwire.Emit(ctx, wf, events, marshalEnvelope,
			feedwire.WithFraming(feedwire.NDJSONFraming),
			feedwire.WithFlushPolicy(feedwire.FlushImmediate()))
	} else {
		outcome, err = feedwire.Emit(ctx, wf, bareItems{events}, nil,
			feedwire.WithFlushPolicy(feed.FlushPolicy()))
	}

	switch {
	case err == nil:
		h.log.InfoContext(ctx, "stream.end",
			slog.String("outcome", outcome.String()),
			slog.Duration("dur", time.Since(start)))
	case errors.Is(err, feedwire.ErrSinkWrite):
		// Peer is gone; nothing to correct on our side.
		h.log.InfoContext(ctx, "stream.sink.fail",
			slog.String("err", err.Error()),
			slog.Duration("dur", time.Since(start)))
	default:
		h.log.ErrorContext(ctx, "stream.fail",
			slog.String("err", err.Error()),
			slog.Duration("dur", time.Since(start)))
	}
}

// resolveResumePosition extracts the resume position from ?cursor= (signed)
// or ?after= (plain event ID). A signed cursor must have been minted for
// this feed and, when bound, for this principal.
func (h *Handler) resolveResumePosition(ctx context.Context, w http.ResponseWriter, r *http.Request, feedName, sub string) (string, bool) {
	q := r.URL.Query()
	if tok := q.Get("cursor"); tok != "" {
		claims, err := h.cursors.Decode(tok)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid cursor")
			h.log.WarnContext(ctx, "cursor.decode.fail", slog.String("err", err.Error()))
			return "", false
		}
		if err := claims.Validate(feedName, sub); err != nil {
			writeJSONError(w, http.StatusForbidden, "cursor not valid for this stream")
			h.log.WarnContext(ctx, "cursor.validate.fail", slog.String("err", err.Error()))
			return "", false
		}
		return claims.LastEventID, true
	}
	return q.Get("after"), true
}

// handleCreateFeed creates a dynamic feed from a JSON descriptor body.
func (h *Handler) handleCreateFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userInfo, ok := h.checkWriteAuthentication(ctx, r, w)
	if !ok {
		return
	}

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}

	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes)).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	desc := Descriptor{
		Name:        body.Name,
		Description: body.Description,
		Dynamic:     true,
		CreatedBy:   userID(userInfo),
	}
	if err := h.reg.CreateDynamic(ctx, desc); err != nil {
		h.writeRegistryError(ctx, w, err)
		return
	}

	h.log.InfoContext(ctx, "feed.create.ok", slog.String("feed", desc.Name))
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(desc)
}

// handlePublishEvent appends one JSON item to a dynamic feed.
func (h *Handler) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := h.checkWriteAuthentication(ctx, r, w); !ok {
		return
	}

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if !json.Valid(data) {
		writeJSONError(w, http.StatusBadRequest, "body must be a JSON value")
		return
	}

	feedName := r.PathValue("feed")
	id, err := h.reg.Publish(ctx, feedName, data)
	if err != nil {
		h.writeRegistryError(ctx, w, err)
		return
	}

	h.log.InfoContext(ctx, "feed.publish.ok", slog.String("feed", feedName), slog.String("event_id", id))
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
}

// handleMintCursor issues a signed resume cursor for ?after=.
func (h *Handler) handleMintCursor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userInfo, ok := h.checkAuthentication(ctx, r, w)
	if !ok {
		return
	}

	feedName := r.PathValue("feed")
	if _, err := h.reg.Lookup(ctx, feedName); err != nil {
		h.writeRegistryError(ctx, w, err)
		return
	}

	claims := cursor.Claims{
		Feed:        feedName,
		LastEventID: r.URL.Query().Get("after"),
		Subject:     userID(userInfo),
	}
	tok, err := h.cursors.Encode(claims)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to mint cursor")
		h.log.ErrorContext(ctx, "cursor.encode.fail", slog.String("err", err.Error()))
		return
	}

	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"cursor": tok})
}

// handleGetSchema serves the JSON Schema of the feed's items.
func (h *Handler) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := h.checkAuthentication(ctx, r, w); !ok {
		return
	}

	feedName := r.PathValue("feed")
	feed, err := h.reg.Lookup(ctx, feedName)
	if err != nil {
		h.writeRegistryError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(feed.ItemSchema())
}

// handleDeleteFeed deletes a dynamic feed, its stored descriptor and its
// broker events. Open emissions over the feed end as their streams close.
func (h *Handler) handleDeleteFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := h.checkWriteAuthentication(ctx, r, w); !ok {
		return
	}

	feedName := r.PathValue("feed")
	if err := h.reg.DeleteDynamic(ctx, feedName); err != nil {
		h.writeRegistryError(ctx, w, err)
		return
	}

	h.log.InfoContext(ctx, "feed.delete.ok", slog.String("feed", feedName))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeRegistryError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrFeedNotFound):
		writeJSONError(w, http.StatusNotFound, "feed not found")
	case errors.Is(err, ErrFeedExists):
		writeJSONError(w, http.StatusConflict, "feed already exists")
	case errors.Is(err, ErrNotDynamic):
		writeJSONError(w, http.StatusMethodNotAllowed, "feed is not dynamic")
	case errors.Is(err, ErrDynamicDisabled):
		writeJSONError(w, http.StatusNotImplemented, "dynamic feeds are not configured")
	case strings.HasPrefix(err.Error(), "invalid feed name"):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		h.log.ErrorContext(ctx, "registry.op.fail", slog.String("err", err.Error()))
	}
}

// checkAuthentication validates the request's bearer token. It returns
// ok=false after writing the response when the request must not proceed.
// With no authenticator configured every request passes with a nil user.
func (h *Handler) checkAuthentication(ctx context.Context, r *http.Request, w http.ResponseWriter) (auth.UserInfo, bool) {
	if h.auth == nil {
		return nil, true
	}

	authHeader := r.Header.Get(authorizationHeader)
	if authHeader == "" {
		// RFC 6750 §3.1: no credentials means a bare challenge without an
		// error code.
		h.log.InfoContext(ctx, "auth.check.missing")
		w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(h.realm, nil))
		w.WriteHeader(http.StatusUnauthorized)
		return nil, false
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) || len(authHeader) <= len(bearerPrefix) {
		h.log.InfoContext(ctx, "auth.check.invalid", slog.String("err", "malformed bearer authorization header"))
		w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(h.realm, map[string]string{"error": "invalid_request", "error_description": "malformed bearer authorization header"}))
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}
	tok := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if tok == "" {
		h.log.InfoContext(ctx, "auth.check.invalid", slog.String("err", "empty bearer token"))
		w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(h.realm, map[string]string{"error": "invalid_request", "error_description": "empty bearer token"}))
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}

	userInfo, err := h.auth.CheckAuthentication(ctx, tok)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
			w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(h.realm, map[string]string{"error": "invalid_token", "error_description": err.Error()}))
			w.WriteHeader(http.StatusUnauthorized)
			return nil, false
		}
		if errors.Is(err, auth.ErrInsufficientScope) {
			h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
			w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(h.realm, map[string]string{"error": "insufficient_scope", "error_description": err.Error()}))
			w.WriteHeader(http.StatusForbidden)
			return nil, false
		}
		h.log.ErrorContext(ctx, "auth.check.err", slog.String("err", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return nil, false
	}

	return userInfo, true
}

// checkWriteAuthentication is checkAuthentication plus the optional write
// scope gate for mutating endpoints.
func (h *Handler) checkWriteAuthentication(ctx context.Context, r *http.Request, w http.ResponseWriter) (auth.UserInfo, bool) {
	userInfo, ok := h.checkAuthentication(ctx, r, w)
	if !ok {
		return nil, false
	}
	if h.wrScope == "" || userInfo == nil {
		return userInfo, true
	}
	if !hasScope(userInfo, h.wrScope) {
		h.log.InfoContext(ctx, "auth.scope.fail", slog.String("scope", h.wrScope))
		w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(h.realm, map[string]string{"error": "insufficient_scope", "scope": h.wrScope}))
		w.WriteHeader(http.StatusForbidden)
		return nil, false
	}
	return userInfo, true
}

func hasScope(ui auth.UserInfo, want string) bool {
	var claims struct {
		Scope string `json:"scope"`
	}
	if err := ui.Claims(&claims); err != nil {
		return false
	}
	for _, s := range strings.Fields(claims.Scope) {
		if s == want {
			return true
		}
	}
	return false
}

func userID(ui auth.UserInfo) string {
	if ui == nil {
		return ""
	}
	return ui.UserID()
}

// buildBearerChallenge builds a Bearer challenge header value:
//
//	Bearer realm="<realm>", error="...", error_description="...", scope="..."
//
// Realm is omitted if empty. Keys are emitted in a fixed logical order since
// Go map iteration is randomized.
func buildBearerChallenge(realm string, params map[string]string) string {
	pieces := make([]string, 0, 1+len(params))
	esc := func(v string) string { return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) }
	if realm != "" {
		pieces = append(pieces, fmt.Sprintf(`realm="%s"`, esc(realm)))
	}
	for _, k := range []string{"error", "error_description", "scope"} {
		if v, ok := params[k]; ok {
			pieces = append(pieces, fmt.Sprintf(`%s="%s"`, k, esc(v)))
		}
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}

// marshalEnvelope serializes one event as an NDJSON envelope carrying the
// event ID so the client can mint a resume cursor from it.
func marshalEnvelope(ev broker.Event) ([]byte, error) {
	return json.Marshal(struct {
		ID   string          `json:"id"`
		Data json.RawMessage `json:"data"`
	}{ID: ev.ID, Data: json.RawMessage(ev.Data)})
}

// bareItems strips event metadata for array-framed streams.
type bareItems struct {
	events feedwire.Source[broker.Event]
}

func (b bareItems) Next(ctx context.Context) (json.RawMessage, error) {
	ev, err := b.events.Next(ctx)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(ev.Data), nil
}

func (b bareItems) Close() error { return b.events.Close() }
