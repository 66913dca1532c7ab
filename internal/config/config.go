// Package config loads and resolves the proxy's configuration: the host
// process settings (listener, TLS, MITM, upstream transport) and the
// content-negotiation filter's nested scope chain (spec §3 Config, §6
// Configuration surface / Inheritance).
package config

import (
	"time"

	"github.com/spf13/viper"
)

// OnError selects the Filter Orchestrator's behavior on conversion failure.
type OnError string

const (
	OnErrorPass   OnError = "pass"
	OnErrorReject OnError = "reject"
)

// Flavor selects the Markdown dialect the emitter produces.
type Flavor string

const (
	FlavorCommonMark Flavor = "commonmark"
	FlavorGFM        Flavor = "gfm"
)

// AuthPolicy controls whether authenticated requests are eligible.
type AuthPolicy string

const (
	AuthAllow AuthPolicy = "allow"
	AuthDeny  AuthPolicy = "deny"
)

// ConditionalMode selects how If-None-Match / If-Modified-Since are honored.
type ConditionalMode string

const (
	ConditionalFull     ConditionalMode = "full_support"
	ConditionalIMSOnly  ConditionalMode = "if_modified_since_only"
	ConditionalDisabled ConditionalMode = "disabled"
)

// Filter is the fully-resolved, effective filter configuration for a
// single request -- the "config_snapshot" referenced throughout spec §3.
// It is immutable once constructed; a new Config version is built for
// every reconfiguration (spec §5 "Shared resources").
type Filter struct {
	Enabled             bool
	MaxSize             int64
	Timeout             time.Duration
	OnError             OnError
	Flavor              Flavor
	TokenEstimate       bool
	FrontMatter         bool
	OnWildcard          bool
	AuthPolicy          AuthPolicy
	AuthCookies         []string
	GenerateETag        bool
	ConditionalRequests ConditionalMode
	BufferChunked       bool
	StreamTypes         []string
	AutoDecompress      bool
	// PreciseTokenCount additionally runs the tiktoken-based counter and
	// emits X-Markdown-Tokens-Precise. Additive to spec §4.12's mandated
	// heuristic estimator; see SPEC_FULL §5.1.
	PreciseTokenCount bool
	// BaseURL resolves relative URLs encountered during metadata
	// extraction (spec §4.10 image resolution) and counts toward the
	// "config_snapshot_reduced" subset affecting output determinism
	// (spec Invariant 4).
	BaseURL string
}

// DefaultFilter returns the spec §3 Config defaults.
func DefaultFilter() Filter {
	return Filter{
		Enabled:             false,
		MaxSize:             10 * 1024 * 1024,
		Timeout:             5 * time.Second,
		OnError:             OnErrorPass,
		Flavor:              FlavorCommonMark,
		TokenEstimate:       false,
		FrontMatter:         false,
		OnWildcard:          false,
		AuthPolicy:          AuthAllow,
		AuthCookies:         nil,
		GenerateETag:        true,
		ConditionalRequests: ConditionalFull,
		BufferChunked:       true,
		StreamTypes:         nil,
		AutoDecompress:      true,
		PreciseTokenCount:   false,
	}
}

// Scope is one override layer in the nested scope chain (spec §6
// "Inheritance: child scope overrides parent scope completely for
// list-valued settings; for scalar settings, unset values inherit, set
// values override"). Scalar fields are pointers so "unset" is
// distinguishable from "explicitly set to the zero value". Slice fields
// are replaced wholesale when non-nil.
type Scope struct {
	Enabled             *bool            `mapstructure:"enabled"`
	MaxSize             *int64           `mapstructure:"max_size"`
	Timeout             *time.Duration   `mapstructure:"timeout"`
	OnError             *OnError         `mapstructure:"on_error"`
	Flavor              *Flavor          `mapstructure:"flavor"`
	TokenEstimate       *bool            `mapstructure:"token_estimate"`
	FrontMatter         *bool            `mapstructure:"front_matter"`
	OnWildcard          *bool            `mapstructure:"on_wildcard"`
	AuthPolicy          *AuthPolicy      `mapstructure:"auth_policy"`
	AuthCookies         []string         `mapstructure:"auth_cookies"`
	GenerateETag        *bool            `mapstructure:"generate_etag"`
	ConditionalRequests *ConditionalMode `mapstructure:"conditional_requests"`
	BufferChunked       *bool            `mapstructure:"buffer_chunked"`
	StreamTypes         []string         `mapstructure:"stream_types"`
	AutoDecompress      *bool            `mapstructure:"auto_decompress"`
	PreciseTokenCount   *bool            `mapstructure:"precise_token_count"`
	BaseURL             *string          `mapstructure:"base_url"`
}

// Apply merges s onto base, returning the resolved Filter for a child
// scope (e.g. a specific upstream host). base is never mutated.
func (base Filter) Apply(s Scope) Filter {
	out := base
	if s.Enabled != nil {
		out.Enabled = *s.Enabled
	}
	if s.MaxSize != nil {
		out.MaxSize = *s.MaxSize
	}
	if s.Timeout != nil {
		out.Timeout = *s.Timeout
	}
	if s.OnError != nil {
		out.OnError = *s.OnError
	}
	if s.Flavor != nil {
		out.Flavor = *s.Flavor
	}
	if s.TokenEstimate != nil {
		out.TokenEstimate = *s.TokenEstimate
	}
	if s.FrontMatter != nil {
		out.FrontMatter = *s.FrontMatter
	}
	if s.OnWildcard != nil {
		out.OnWildcard = *s.OnWildcard
	}
	if s.AuthPolicy != nil {
		out.AuthPolicy = *s.AuthPolicy
	}
	if s.AuthCookies != nil {
		out.AuthCookies = s.AuthCookies
	}
	if s.GenerateETag != nil {
		out.GenerateETag = *s.GenerateETag
	}
	if s.ConditionalRequests != nil {
		out.ConditionalRequests = *s.ConditionalRequests
	}
	if s.BufferChunked != nil {
		out.BufferChunked = *s.BufferChunked
	}
	if s.StreamTypes != nil {
		out.StreamTypes = s.StreamTypes
	}
	if s.AutoDecompress != nil {
		out.AutoDecompress = *s.AutoDecompress
	}
	if s.PreciseTokenCount != nil {
		out.PreciseTokenCount = *s.PreciseTokenCount
	}
	if s.BaseURL != nil {
		out.BaseURL = *s.BaseURL
	}
	return out
}

// ProxyConfig configures the proxy listener.
type ProxyConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// TLSConfig configures the proxy's own TLS listener.
type TLSConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	CertFile     string `mapstructure:"cert_file"`
	KeyFile      string `mapstructure:"key_file"`
	AutoCert     bool   `mapstructure:"auto_cert"`
	AutoCertHost string `mapstructure:"auto_cert_host"`
	AutoCertDir  string `mapstructure:"auto_cert_dir"`
	Insecure     bool   `mapstructure:"insecure"`
}

// MITMConfig configures HTTPS interception for the forward proxy.
type MITMConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	CertDir string `mapstructure:"cert_dir"`
}

// ChromedpConfig configures the optional headless-Chrome upstream transport.
type ChromedpConfig struct {
	URL      string `mapstructure:"url"`
	PoolSize int    `mapstructure:"pool_size"`
}

// TransportConfig selects the upstream transport.
type TransportConfig struct {
	Type     string         `mapstructure:"type"` // "http" or "chromedp"
	Chromedp ChromedpConfig `mapstructure:"chromedp"`
}

// URLFilterConfig configures the host-level request allow-list
// (internal/urlfilter), unrelated to content negotiation.
type URLFilterConfig struct {
	Allowed []string `mapstructure:"allowed"`
}

// ErrorPageConfig holds the path of the single Mustache template file
// used to render the on_error=reject 502 body (internal/errorpage).
// Despite its name, Dir is a file path, not a directory.
type ErrorPageConfig struct {
	Dir string `mapstructure:"dir"`
}

// TokensConfig configures the optional precise tiktoken-based counter.
type TokensConfig struct {
	Encoding string `mapstructure:"encoding"`
}

// Config holds the full process configuration: host/proxy plumbing plus
// the filter's root scope and any named per-host override scopes.
type Config struct {
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	TLS       TLSConfig       `mapstructure:"tls"`
	MITM      MITMConfig      `mapstructure:"mitm"`
	Transport TransportConfig `mapstructure:"transport"`
	URLFilter URLFilterConfig `mapstructure:"url_filter"`
	ErrorPage ErrorPageConfig `mapstructure:"error_page"`
	Tokens    TokensConfig    `mapstructure:"tokens"`
	LogLevel  string          `mapstructure:"log_level"`

	// FilterRoot is the global root scope; all per-host Scopes inherit
	// from its resolved Filter.
	FilterRoot Scope `mapstructure:"filter"`
	// Scopes maps a Host header / SNI pattern to an override layer.
	Scopes map[string]Scope `mapstructure:"scopes"`
}

// Resolve returns the effective Filter for the given upstream host,
// applying the root scope and then (if present) the host's named scope.
func (c *Config) Resolve(host string) Filter {
	effective := DefaultFilter().Apply(c.FilterRoot)
	if s, ok := c.Scopes[host]; ok {
		effective = effective.Apply(s)
	}
	return effective
}

// Load reads configuration from cfgFile (or default locations) and
// MITM_-prefixed environment variables. It does not resolve filter
// scopes; Resolve applies the root and per-host scopes to the defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.markdowninthemiddle")
		v.AddConfigPath("/etc/markdowninthemiddle")
	}

	v.SetEnvPrefix("MITM")
	v.AutomaticEnv()

	v.SetDefault("proxy.addr", ":8080")
	v.SetDefault("proxy.read_timeout", "30s")
	v.SetDefault("proxy.write_timeout", "30s")
	v.SetDefault("tls.enabled", false)
	v.SetDefault("tls.auto_cert", true)
	v.SetDefault("tls.auto_cert_host", "localhost")
	v.SetDefault("tls.auto_cert_dir", "./certs")
	v.SetDefault("tls.insecure", false)
	v.SetDefault("mitm.enabled", false)
	v.SetDefault("mitm.cert_dir", "./mitm-ca")
	v.SetDefault("transport.type", "http")
	v.SetDefault("transport.chromedp.pool_size", 5)
	v.SetDefault("tokens.encoding", "cl100k_base")
	v.SetDefault("log_level", "info")

	// filter.enabled has no viper default: spec.md §3 mandates "enabled:
	// bool (default off)", matching DefaultFilter()'s zero-value Enabled
	// field. Leaving it unset here means an unconfigured root scope
	// resolves to false, requiring an explicit opt-in.
	v.SetDefault("filter.max_size", 10485760)
	v.SetDefault("filter.timeout", "5s")
	v.SetDefault("filter.on_error", "pass")
	v.SetDefault("filter.flavor", "commonmark")
	v.SetDefault("filter.token_estimate", false)
	v.SetDefault("filter.front_matter", false)
	v.SetDefault("filter.on_wildcard", false)
	v.SetDefault("filter.auth_policy", "allow")
	v.SetDefault("filter.generate_etag", true)
	v.SetDefault("filter.conditional_requests", "full_support")
	v.SetDefault("filter.buffer_chunked", true)
	v.SetDefault("filter.auto_decompress", true)
	v.SetDefault("filter.precise_token_count", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
