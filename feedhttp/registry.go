package feedhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/invopop/jsonschema"

	feedwire "github.com/feedwire/feedwire-go"
	"github.com/feedwire/feedwire-go/broker"
	"github.com/feedwire/feedwire-go/storage"
)

var (
	// ErrFeedNotFound indicates the named feed is neither registered in code
	// nor present in storage.
	ErrFeedNotFound = errors.New("feed not found")
	// ErrFeedExists indicates a feed with that name already exists.
	ErrFeedExists = errors.New("feed already exists")
	// ErrNotDynamic indicates a mutation was attempted on a code-registered
	// feed.
	ErrNotDynamic = errors.New("feed is not dynamic")
	// ErrDynamicDisabled indicates the registry has no storage/broker pair
	// and cannot host dynamic feeds.
	ErrDynamicDisabled = errors.New("dynamic feeds are not configured")
)

// feedNameRe constrains feed names to something safe in URL paths and
// storage keys.
var feedNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}$`)

// FeedDef declares a feed registered in code. Its Open function is invoked
// once per emission; afterEventID is the resume position (empty for a fresh
// stream) and is interpreted by the definition itself.
type FeedDef struct {
	Name        string
	Description string

	// ItemPrototype, when non-nil, is reflected into the JSON Schema served
	// for this feed's items. A nil prototype yields a permissive schema.
	ItemPrototype any

	Open func(ctx context.Context, afterEventID string) (feedwire.Source[json.RawMessage], error)

	// Flush is the policy applied while streaming this feed. The zero value
	// defers entirely to the sink's buffering; live feeds normally want
	// feedwire.FlushImmediate.
	Flush feedwire.FlushPolicy
}

// Descriptor is the catalog entry of a feed. Dynamic descriptors are also
// the form persisted in storage.
type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Dynamic     bool   `json:"dynamic,omitempty"`
	CreatedBy   string `json:"created_by,omitempty"`
}

// Registry resolves feed names to streamable feeds. Static feeds are
// registered in code; dynamic feeds are created over HTTP, persisted in
// storage, and carried by the broker so any node can serve them.
type Registry struct {
	mu     sync.RWMutex
	static map[string]*FeedDef

	store storage.Storage
	brk   broker.Broker
}

// NewRegistry creates a registry. store and brk may both be nil, in which
// case only code-registered feeds are served and dynamic feed creation is
// rejected.
func NewRegistry(store storage.Storage, brk broker.Broker) *Registry {
	return &Registry{static: make(map[string]*FeedDef), store: store, brk: brk}
}

// Register adds a code-registered feed.
func (r *Registry) Register(def FeedDef) error {
	if !feedNameRe.MatchString(def.Name) {
		return fmt.Errorf("invalid feed name %q", def.Name)
	}
	if def.Open == nil {
		return fmt.Errorf("feed %q: Open is required", def.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.static[def.Name]; ok {
		return fmt.Errorf("%w: %s", ErrFeedExists, def.Name)
	}
	r.static[def.Name] = &def
	return nil
}

// List returns the catalog: static feeds first (sorted by name), then
// dynamic feeds from storage.
func (r *Registry) List(ctx context.Context) ([]Descriptor, error) {
	r.mu.RLock()
	descs := make([]Descriptor, 0, len(r.static))
	for _, def := range r.static {
		descs = append(descs, Descriptor{Name: def.Name, Description: def.Description})
	}
	r.mu.RUnlock()
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })

	if r.store == nil {
		return descs, nil
	}
	names, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list dynamic feeds: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		desc, err := r.loadDescriptor(ctx, name)
		if err != nil {
			return nil, err
		}
		if desc != nil {
			descs = append(descs, *desc)
		}
	}
	return descs, nil
}

// Lookup resolves a feed by name.
func (r *Registry) Lookup(ctx context.Context, name string) (*Feed, error) {
	r.mu.RLock()
	def, ok := r.static[name]
	r.mu.RUnlock()
	if ok {
		return &Feed{Descriptor: Descriptor{Name: def.Name, Description: def.Description}, reg: r, def: def}, nil
	}

	if r.store == nil {
		return nil, fmt.Errorf("%w: %s", ErrFeedNotFound, name)
	}
	desc, err := r.loadDescriptor(ctx, name)
	if err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, fmt.Errorf("%w: %s", ErrFeedNotFound, name)
	}
	return &Feed{Descriptor: *desc, reg: r}, nil
}

// CreateDynamic persists a new dynamic feed descriptor.
func (r *Registry) CreateDynamic(ctx context.Context, desc Descriptor) error {
	if r.store == nil || r.brk == nil {
		return ErrDynamicDisabled
	}
	if !feedNameRe.MatchString(desc.Name) {
		return fmt.Errorf("invalid feed name %q", desc.Name)
	}
	r.mu.RLock()
	_, taken := r.static[desc.Name]
	r.mu.RUnlock()
	if taken {
		return fmt.Errorf("%w: %s", ErrFeedExists, desc.Name)
	}
	existing, err := r.loadDescriptor(ctx, desc.Name)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrFeedExists, desc.Name)
	}

	desc.Dynamic = true
	data, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("failed to marshal feed descriptor: %w", err)
	}
	if err := r.store.Set(ctx, desc.Name, data); err != nil {
		return fmt.Errorf("failed to persist feed descriptor: %w", err)
	}
	return nil
}

// DeleteDynamic removes a dynamic feed: its descriptor, and any events and
// subscriptions held by the broker.
func (r *Registry) DeleteDynamic(ctx context.Context, name string) error {
	r.mu.RLock()
	_, isStatic := r.static[name]
	r.mu.RUnlock()
	if isStatic {
		return fmt.Errorf("%w: %s", ErrNotDynamic, name)
	}
	if r.store == nil {
		return fmt.Errorf("%w: %s", ErrFeedNotFound, name)
	}
	desc, err := r.loadDescriptor(ctx, name)
	if err != nil {
		return err
	}
	if desc == nil {
		return fmt.Errorf("%w: %s", ErrFeedNotFound, name)
	}
	if err := r.store.Delete(ctx, storage.WithKey(name)); err != nil {
		return fmt.Errorf("failed to delete feed descriptor: %w", err)
	}
	if err := r.brk.Cleanup(ctx, name); err != nil {
		return fmt.Errorf("failed to clean up feed events: %w", err)
	}
	return nil
}

// Publish appends one event to a dynamic feed and returns its event ID.
func (r *Registry) Publish(ctx context.Context, name string, data []byte) (string, error) {
	r.mu.RLock()
	_, isStatic := r.static[name]
	r.mu.RUnlock()
	if isStatic {
		return "", fmt.Errorf("%w: %s", ErrNotDynamic, name)
	}
	if r.store == nil || r.brk == nil {
		return "", ErrDynamicDisabled
	}
	desc, err := r.loadDescriptor(ctx, name)
	if err != nil {
		return "", err
	}
	if desc == nil {
		return "", fmt.Errorf("%w: %s", ErrFeedNotFound, name)
	}
	return r.brk.Publish(ctx, name, data)
}

func (r *Registry) loadDescriptor(ctx context.Context, name string) (*Descriptor, error) {
	item, err := r.store.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load feed descriptor: %w", err)
	}
	if item == nil {
		return nil, nil
	}
	var desc Descriptor
	if err := json.Unmarshal(item.Data, &desc); err != nil {
		return nil, fmt.Errorf("corrupt feed descriptor %q: %w", name, err)
	}
	return &desc, nil
}

// Feed is a resolved feed ready to stream.
type Feed struct {
	Descriptor

	reg *Registry
	def *FeedDef // nil for dynamic feeds
}

// Events opens the feed's event sequence starting after afterEventID (empty
// for a fresh stream). The caller owns the returned source and must close
// it when the emission ends.
func (f *Feed) Events(ctx context.Context, afterEventID string) (feedwire.Source[broker.Event], error) {
	if f.def != nil {
		src, err := f.def.Open(ctx, afterEventID)
		if err != nil {
			return nil, err
		}
		return &ordinalSource{src: src, next: parseOrdinal(afterEventID) + 1}, nil
	}

	stream, err := f.reg.brk.Subscribe(ctx, f.Name, afterEventID)
	if err != nil {
		return nil, err
	}
	return eventStreamSource{stream: stream}, nil
}

// FlushPolicy returns the flush policy for emissions of this feed. Dynamic
// feeds are live and always flush per element.
func (f *Feed) FlushPolicy() feedwire.FlushPolicy {
	if f.def != nil {
		return f.def.Flush
	}
	return feedwire.FlushImmediate()
}

// ItemSchema returns the JSON Schema of this feed's items. Dynamic feeds
// accept any JSON value.
func (f *Feed) ItemSchema() json.RawMessage {
	if f.def == nil || f.def.ItemPrototype == nil {
		return json.RawMessage(`{}`)
	}
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	s := r.Reflect(f.def.ItemPrototype)
	b, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// ordinalSource assigns 1-based ordinal event IDs to items of a
// code-registered feed, so line-framed streams can be resumed by position.
type ordinalSource struct {
	src  feedwire.Source[json.RawMessage]
	next int64
}

func (o *ordinalSource) Next(ctx context.Context) (broker.Event, error) {
	item, err := o.src.Next(ctx)
	if err != nil {
		return broker.Event{}, err
	}
	ev := broker.Event{ID: strconv.FormatInt(o.next, 10), Data: item}
	o.next++
	return ev, nil
}

func (o *ordinalSource) Close() error { return o.src.Close() }

func parseOrdinal(id string) int64 {
	if id == "" {
		return 0
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// eventStreamSource adapts a broker stream to a feedwire source of events.
type eventStreamSource struct {
	stream broker.EventStream
}

func (s eventStreamSource) Next(ctx context.Context) (broker.Event, error) {
	return s.stream.Next(ctx)
}

func (s eventStreamSource) Close() error { return s.stream.Close() }
