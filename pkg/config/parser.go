package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
)

// builtinConfigSchema constrains bootstrap configuration files. All
// fields are optional; defaults fill the gaps after decoding.
const builtinConfigSchema = `
#Mount: {
	key:  string & !=""
	path: string & !=""
}

#Config: {
	dir?:    string
	mounts?: [...#Mount]
	lazy?:   bool

	store_config?: {
		defaults?: string
		store?:    string
		watch?:    bool
	}

	logging?: {
		level?:         "trace" | "debug" | "info" | "warn" | "error" | "fatal"
		format?:        "json" | "console"
		output?:        string
		enable_caller?: bool
	}

	metrics?: {
		enabled?:     bool
		namespace?:   string
		listen_addr?: string
	}

	tracing?: {
		enabled?:        bool
		exporter?:       "otlp" | "stdout" | "none"
		endpoint?:       string
		insecure?:       bool
		sampling_rate?:  >=0 & <=1
		export_timeout?: int
	}
}
`

// Parser parses and validates CUE bootstrap configuration files.
type Parser struct {
	ctx       *cue.Context
	schema    cue.Value
	validator *validator.Validate
}

// NewParser creates a parser with the built-in schema compiled.
func NewParser() (*Parser, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(builtinConfigSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile config schema: %w", err)
	}
	return &Parser{
		ctx:       ctx,
		schema:    schema.LookupPath(cue.ParsePath("#Config")),
		validator: validator.New(),
	}, nil
}

// ParseFile loads a CUE configuration file, validates it against the
// schema and returns the decoded configuration with defaults applied.
func (p *Parser) ParseFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return p.Parse(content, path)
}

// Parse validates and decodes raw CUE source. The filename is used
// only for error positions.
func (p *Parser) Parse(content []byte, filename string) (*Config, error) {
	val := p.ctx.CompileBytes(content, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse config: %s", cueerrors.Details(err, nil))
	}

	unified := p.schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("config validation failed: %s", cueerrors.Details(err, nil))
	}

	cfg := DefaultConfig()
	if err := unified.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	applyDefaults(&cfg)

	if err := p.validator.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// applyDefaults fills fields the file left unset. Decode overwrites
// the pre-seeded struct wholesale for nested sections that appear in
// the file, so zero values are normalized here.
func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = def.Logging.Output
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = def.Metrics.Namespace
	}
	if cfg.Tracing.Exporter == "" {
		cfg.Tracing.Exporter = def.Tracing.Exporter
	}
	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = def.Tracing.SamplingRate
	}
	if cfg.Tracing.ExportTimeout == 0 {
		cfg.Tracing.ExportTimeout = def.Tracing.ExportTimeout
	}
}
