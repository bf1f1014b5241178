package configstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/slothlet/slothlet/pkg/engine"
	"github.com/slothlet/slothlet/pkg/telemetry"
)

// Namespace prefixes.
const (
	NamespaceCore   = "core"
	NamespacePublic = "public"
	NamespaceModule = "module"
)

// Token is the opaque identity a unit presents to write into its own
// module namespace. Tokens are issued by the store at load time and
// bound into accessors by closure; there is no caller stack inspection.
type Token struct {
	module string
	id     uuid.UUID
}

// Module returns the module name the token was issued for.
func (t Token) Module() string { return t.module }

// DefaultsSource supplies the core: and public: entry sets for Init
// and Reload.
type DefaultsSource interface {
	// Load returns the core and public entry maps (unprefixed keys).
	Load(ctx context.Context) (core, public map[string]any, err error)

	// Path returns the backing file path, or "" when not file-backed.
	Path() string
}

// Store is the namespaced config store. All reads take the read lock;
// writes and reloads take the write lock, so a reload is observed
// atomically and module writes never interleave with it.
type Store struct {
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	source  DefaultsSource
	persist *Persistence

	mu      sync.RWMutex
	entries map[string]any
	tokens  map[uuid.UUID]string
	seedC   map[string]any
	seedP   map[string]any
	sealed  bool
}

// Option configures a Store.
type Option func(*Store)

// WithSource sets the defaults backing source.
func WithSource(src DefaultsSource) Option {
	return func(s *Store) { s.source = src }
}

// WithPersistence enables durable module-namespace entries.
func WithPersistence(p *Persistence) Option {
	return func(s *Store) { s.persist = p }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithTracer attaches a tracer; reloads then produce spans.
func WithTracer(t *telemetry.Tracer) Option {
	return func(s *Store) { s.tracer = t }
}

// New creates an uninitialized store. Call Seed (optionally) and Init
// before handing accessors to units.
func New(logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		logger:  logger.With().Str("component", "configstore").Logger(),
		entries: make(map[string]any),
		tokens:  make(map[uuid.UUID]string),
		seedC:   make(map[string]any),
		seedP:   make(map[string]any),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed adds programmatic core/public defaults. Only valid before Init;
// afterwards both namespaces are read-only for everyone.
func (s *Store) Seed(core, public map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return engine.NewAccessDeniedError("", "core and public namespaces are write-once at initialization")
	}
	for k, v := range core {
		s.seedC[k] = v
	}
	for k, v := range public {
		s.seedP[k] = v
	}
	return nil
}

// Init populates the entry set from the seed values, the defaults
// source and the persistence layer, then seals the core and public
// namespaces.
func (s *Store) Init(ctx context.Context) error {
	entries, err := s.buildEntries(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries = entries
	s.sealed = true
	s.mu.Unlock()
	s.logger.Info().Int("entries", len(entries)).Msg("config store initialized")
	return nil
}

// Reload atomically replaces the entire entry set from the backing
// source (and persisted module entries). Concurrent readers observe
// either the fully-old or fully-new set, never a mix.
func (s *Store) Reload(ctx context.Context) error {
	ctx, span := s.tracer.StartSpan(ctx, "store.reload")
	defer span.End()

	entries, err := s.buildEntries(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	s.metrics.ConfigReload()
	s.logger.Info().Int("entries", len(entries)).Msg("config store reloaded")
	return nil
}

// buildEntries assembles a fresh entry map. The result is swapped in
// wholesale; the map is never mutated while reachable by readers
// except for token-authorized module writes under the write lock.
func (s *Store) buildEntries(ctx context.Context) (map[string]any, error) {
	entries := make(map[string]any)
	for k, v := range s.seedC {
		entries[NamespaceCore+":"+k] = v
	}
	for k, v := range s.seedP {
		entries[NamespacePublic+":"+k] = v
	}
	if s.source != nil {
		core, public, err := s.source.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load defaults source: %w", err)
		}
		for k, v := range core {
			entries[NamespaceCore+":"+k] = v
		}
		for k, v := range public {
			entries[NamespacePublic+":"+k] = v
		}
	}
	if s.persist != nil {
		moduleEntries, err := s.persist.LoadEntries(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load persisted module entries: %w", err)
		}
		for k, v := range moduleEntries {
			entries[k] = v
		}
	}
	return entries, nil
}

// IssueToken registers and returns an identity token for a module.
func (s *Store) IssueToken(module string) Token {
	tok := Token{module: module, id: uuid.New()}
	s.mu.Lock()
	s.tokens[tok.id] = module
	s.mu.Unlock()
	return tok
}

// Bind issues a token for module and returns an accessor with the
// token closed over, ready to hand to the unit at load time.
func (s *Store) Bind(module string) *ModuleAccessor {
	return &ModuleAccessor{store: s, token: s.IssueToken(module)}
}

// Get returns the value for a fully-qualified key. A missing key
// yields the caller-supplied default, or KeyNotFoundError when none is
// given. Reads are unrestricted in every namespace.
func (s *Store) Get(key string, def ...any) (any, error) {
	s.mu.RLock()
	v, ok := s.entries[key]
	s.mu.RUnlock()
	s.metrics.ConfigOp("get", ok || len(def) > 0)
	if !ok {
		if len(def) > 0 {
			return def[0], nil
		}
		return nil, engine.NewKeyNotFoundError(key)
	}
	return v, nil
}

// Core reads a key from the core: namespace.
func (s *Store) Core(key string, def ...any) (any, error) {
	return s.Get(NamespaceCore+":"+key, def...)
}

// Public reads a key from the public: namespace.
func (s *Store) Public(key string, def ...any) (any, error) {
	return s.Get(NamespacePublic+":"+key, def...)
}

// Set writes a fully-qualified key on behalf of the token holder.
// core: and public: are read-only after initialization; module:<name>:
// requires a token issued for exactly that module.
func (s *Store) Set(tok Token, key string, value any) error {
	ns, module, ok := splitNamespace(key)
	if !ok {
		s.metrics.ConfigOp("set", false)
		return engine.NewAccessDeniedError(key, "unknown config namespace")
	}

	switch ns {
	case NamespaceCore, NamespacePublic:
		s.metrics.ConfigOp("set", false)
		return engine.NewAccessDeniedError(key, "namespace is read-only after initialization")
	default:
		s.mu.Lock()
		registered, known := s.tokens[tok.id]
		if !known || registered != tok.module || tok.module != module {
			s.mu.Unlock()
			s.metrics.ConfigOp("set", false)
			s.logger.Warn().
				Str("key", key).
				Str("caller", tok.module).
				Msg("module write denied")
			return engine.NewAccessDeniedError(key,
				fmt.Sprintf("module %q may not write namespace of module %q", tok.module, module))
		}
		if s.persist != nil {
			rest := strings.TrimPrefix(key, NamespaceModule+":"+module+":")
			if err := s.persist.SaveEntry(context.Background(), module, rest, value); err != nil {
				s.mu.Unlock()
				s.metrics.ConfigOp("set", false)
				return fmt.Errorf("failed to persist module entry: %w", err)
			}
		}
		s.entries[key] = value
		s.mu.Unlock()
		s.metrics.ConfigOp("set", true)
		return nil
	}
}

// splitNamespace parses a fully-qualified key into its namespace and,
// for module keys, the owning module name.
func splitNamespace(key string) (ns, module string, ok bool) {
	parts := strings.SplitN(key, ":", 3)
	switch parts[0] {
	case NamespaceCore, NamespacePublic:
		if len(parts) >= 2 && parts[1] != "" {
			return parts[0], "", true
		}
	case NamespaceModule:
		if len(parts) == 3 && parts[1] != "" && parts[2] != "" {
			return NamespaceModule, parts[1], true
		}
	}
	return "", "", false
}

// ModuleAccessor is the config surface bound to one unit. Unqualified
// keys resolve into the unit's own module namespace.
type ModuleAccessor struct {
	store *Store
	token Token
}

// Module returns the owning module name.
func (a *ModuleAccessor) Module() string { return a.token.module }

// Get reads a key. Unqualified keys read from the unit's own module
// namespace; fully-qualified keys read anywhere (reads are
// unrestricted).
func (a *ModuleAccessor) Get(key string, def ...any) (any, error) {
	return a.store.Get(a.qualify(key), def...)
}

// Set writes a key. Unqualified keys write into the unit's own module
// namespace; writes elsewhere are rejected by the store.
func (a *ModuleAccessor) Set(key string, value any) error {
	return a.store.Set(a.token, a.qualify(key), value)
}

func (a *ModuleAccessor) qualify(key string) string {
	if strings.Contains(key, ":") {
		return key
	}
	return NamespaceModule + ":" + a.token.module + ":" + key
}
