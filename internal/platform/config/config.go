package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultLogFileMaxSizeMB     = 64
	defaultLogFileMaxBackups    = 7
	defaultLogFileMaxAgeDays    = 7
	defaultStoreDriver          = StoreDriverFirestore
	defaultBoltPath             = "catalog.db"
	defaultUploadMaxBytes       = 5 << 20
	defaultUploadTTL            = 15 * time.Minute
	defaultRateLimitPublic      = 120
	defaultBreakerMinRequests   = 5
	defaultBreakerFailureRatio  = 0.6
	defaultBreakerOpenTimeout   = 30 * time.Second
	defaultSecurityEnvironment  = "local"
	defaultOIDCJWKSURL          = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer       = "https://accounts.google.com"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyBatchSize = 200
	defaultIdempotencySchedule  = "@every 1h"
	defaultSecretFallbackFile   = ".secrets.local"
)

const (
	// StoreDriverFirestore persists catalog documents in Cloud Firestore.
	StoreDriverFirestore = "firestore"
	// StoreDriverBolt persists catalog documents in a local bbolt file.
	StoreDriverBolt = "bolt"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Logging     LoggingConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Store       StoreConfig
	Storage     StorageConfig
	PubSub      PubSubConfig
	RateLimits  RateLimitConfig
	Breaker     BreakerConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
	Maintenance MaintenanceConfig
	Secrets     SecretsConfig
	Build       BuildConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// LoggingConfig controls the optional rotating log file written next to stdout.
type LoggingConfig struct {
	Level          string
	File           string
	FileMaxSizeMB  int
	FileMaxBackups int
	FileMaxAgeDays int
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StoreConfig selects the catalog persistence backend.
type StoreConfig struct {
	Driver   string
	BoltPath string
}

// StorageConfig configures signed uploads for catalog imagery.
type StorageConfig struct {
	ImagesBucket   string
	PublicBaseURL  string
	SignerKey      string
	UploadMaxBytes int64
	UploadTTL      time.Duration
}

// UploadsEnabled reports whether an images bucket is configured.
func (c StorageConfig) UploadsEnabled() bool {
	return strings.TrimSpace(c.ImagesBucket) != ""
}

// PubSubConfig configures catalog change notifications.
type PubSubConfig struct {
	ProjectID    string
	CatalogTopic string
}

// RateLimitConfig controls request throttling on public routes. Zero disables limiting.
type RateLimitConfig struct {
	PublicPerMinute int
}

// BreakerConfig tunes the circuit breaker guarding public catalog reads.
type BreakerConfig struct {
	Enabled      bool
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification for internal routes.
type OIDCConfig struct {
	JWKSURL   string
	Audience  string
	Audiences map[string]string
	Issuers   []string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupBatchSize int
}

// MaintenanceConfig schedules background jobs. Empty schedules disable the job.
type MaintenanceConfig struct {
	IdempotencyCleanupSchedule string
	ReferenceAuditSchedule     string
}

// SecretsConfig configures Secret Manager lookups.
type SecretsConfig struct {
	DefaultProjectID string
	FallbackFile     string
}

// BuildConfig carries build metadata surfaced on health endpoints.
type BuildConfig struct {
	Version   string
	CommitSHA string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to nothing.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// Names returns the config field names of the missing secrets.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

// RedactedNames returns hashed identifiers safe for logs.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		out = append(out, hex.EncodeToString(sum[:8]))
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map. Values in the map take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks config fields (e.g. "Storage.SignerKey") that must resolve to a value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// EnvironmentValues returns the effective environment (dotenv < OS env < explicit map) so callers can
// initialise dependencies such as the secret fetcher before calling Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)
	values, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load assembles the application configuration from defaults, .env overrides, the environment and
// optional Secret Manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	values, err := EnvironmentValues(opts...)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "CATALOG_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "CATALOG_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "CATALOG_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "CATALOG_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Logging: LoggingConfig{
			Level:          stringWithDefault(lookup, "LOG_LEVEL", "info"),
			File:           stringWithDefault(lookup, "CATALOG_LOG_FILE", ""),
			FileMaxSizeMB:  intWithDefault(lookup, "CATALOG_LOG_FILE_MAX_SIZE_MB", defaultLogFileMaxSizeMB),
			FileMaxBackups: intWithDefault(lookup, "CATALOG_LOG_FILE_MAX_BACKUPS", defaultLogFileMaxBackups),
			FileMaxAgeDays: intWithDefault(lookup, "CATALOG_LOG_FILE_MAX_AGE_DAYS", defaultLogFileMaxAgeDays),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "CATALOG_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "CATALOG_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "CATALOG_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "CATALOG_FIRESTORE_EMULATOR_HOST", ""),
		},
		Store: StoreConfig{
			Driver:   strings.ToLower(stringWithDefault(lookup, "CATALOG_STORE_DRIVER", defaultStoreDriver)),
			BoltPath: stringWithDefault(lookup, "CATALOG_STORE_BOLT_PATH", defaultBoltPath),
		},
		Storage: StorageConfig{
			ImagesBucket:   stringWithDefault(lookup, "CATALOG_STORAGE_IMAGES_BUCKET", ""),
			PublicBaseURL:  stringWithDefault(lookup, "CATALOG_STORAGE_PUBLIC_BASE_URL", ""),
			SignerKey:      stringWithDefault(lookup, "CATALOG_STORAGE_SIGNER_KEY", ""),
			UploadMaxBytes: int64WithDefault(lookup, "CATALOG_STORAGE_UPLOAD_MAX_BYTES", defaultUploadMaxBytes),
			UploadTTL:      durationWithDefault(lookup, "CATALOG_STORAGE_UPLOAD_TTL", defaultUploadTTL),
		},
		PubSub: PubSubConfig{
			ProjectID:    stringWithDefault(lookup, "CATALOG_PUBSUB_PROJECT_ID", ""),
			CatalogTopic: stringWithDefault(lookup, "CATALOG_PUBSUB_CATALOG_TOPIC", ""),
		},
		RateLimits: RateLimitConfig{
			PublicPerMinute: intWithDefault(lookup, "CATALOG_RATE_LIMIT_PUBLIC_PER_MINUTE", defaultRateLimitPublic),
		},
		Breaker: BreakerConfig{
			Enabled:      boolWithDefault(lookup, "CATALOG_BREAKER_ENABLED", true),
			MinRequests:  uint32(intWithDefault(lookup, "CATALOG_BREAKER_MIN_REQUESTS", defaultBreakerMinRequests)),
			FailureRatio: floatWithDefault(lookup, "CATALOG_BREAKER_FAILURE_RATIO", defaultBreakerFailureRatio),
			OpenTimeout:  durationWithDefault(lookup, "CATALOG_BREAKER_OPEN_TIMEOUT", defaultBreakerOpenTimeout),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "CATALOG_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:   stringWithDefault(lookup, "CATALOG_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:  stringWithDefault(lookup, "CATALOG_OIDC_AUDIENCE", ""),
				Audiences: mapWithDefault(lookup, "CATALOG_OIDC_AUDIENCES"),
				Issuers:   csvWithDefault(lookup, "CATALOG_OIDC_ISSUERS"),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "CATALOG_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "CATALOG_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupBatchSize: intWithDefault(lookup, "CATALOG_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
		Maintenance: MaintenanceConfig{
			IdempotencyCleanupSchedule: stringWithDefault(lookup, "CATALOG_MAINTENANCE_IDEMPOTENCY_SCHEDULE", defaultIdempotencySchedule),
			ReferenceAuditSchedule:     stringWithDefault(lookup, "CATALOG_MAINTENANCE_REFERENCE_AUDIT_SCHEDULE", ""),
		},
		Secrets: SecretsConfig{
			DefaultProjectID: stringWithDefault(lookup, "CATALOG_SECRET_DEFAULT_PROJECT_ID", ""),
			FallbackFile:     stringWithDefault(lookup, "CATALOG_SECRET_FALLBACK_FILE", defaultSecretFallbackFile),
		},
		Build: BuildConfig{
			Version:   stringWithDefault(lookup, "CATALOG_BUILD_VERSION", "dev"),
			CommitSHA: stringWithDefault(lookup, "CATALOG_BUILD_COMMIT_SHA", "unknown"),
		},
	}

	// Project ids cascade from the Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Secrets.DefaultProjectID == "" {
		cfg.Secrets.DefaultProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer}
	}
	if cfg.Security.OIDC.Audience == "" {
		if audience, ok := cfg.Security.OIDC.Audiences[cfg.Security.Environment]; ok {
			cfg.Security.OIDC.Audience = audience
		}
	}
	if cfg.Storage.PublicBaseURL == "" && cfg.Storage.ImagesBucket != "" {
		cfg.Storage.PublicBaseURL = "https://storage.googleapis.com/" + cfg.Storage.ImagesBucket
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Storage.SignerKey", &cfg.Storage.SignerKey},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		invalid = append(invalid, "Firebase.ProjectID")
	}
	switch cfg.Store.Driver {
	case StoreDriverFirestore:
		if cfg.Firestore.ProjectID == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
	case StoreDriverBolt:
		if strings.TrimSpace(cfg.Store.BoltPath) == "" {
			invalid = append(invalid, "Store.BoltPath")
		}
	default:
		invalid = append(invalid, "Store.Driver")
	}
	if cfg.Storage.UploadsEnabled() {
		if strings.TrimSpace(cfg.Storage.SignerKey) == "" {
			invalid = append(invalid, "Storage.SignerKey")
		}
		if cfg.Storage.UploadMaxBytes <= 0 {
			invalid = append(invalid, "Storage.UploadMaxBytes")
		}
		if cfg.Storage.UploadTTL <= 0 {
			invalid = append(invalid, "Storage.UploadTTL")
		}
	}
	if cfg.RateLimits.PublicPerMinute < 0 {
		invalid = append(invalid, "RateLimits.PublicPerMinute")
	}
	if cfg.Breaker.Enabled {
		if cfg.Breaker.FailureRatio <= 0 || cfg.Breaker.FailureRatio > 1 {
			invalid = append(invalid, "Breaker.FailureRatio")
		}
		if cfg.Breaker.OpenTimeout <= 0 {
			invalid = append(invalid, "Breaker.OpenTimeout")
		}
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		invalid = append(invalid, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		invalid = append(invalid, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		invalid = append(invalid, "Idempotency.CleanupBatchSize")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var missing []string
	seen := make(map[string]struct{})
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

type lookupFunc func(string) (string, bool)

func rawValue(lookup lookupFunc, key string) (string, bool) {
	value, ok := lookup(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func stringWithDefault(lookup lookupFunc, key, fallback string) string {
	if value, ok := rawValue(lookup, key); ok {
		return value
	}
	return fallback
}

func durationWithDefault(lookup lookupFunc, key string, fallback time.Duration) time.Duration {
	if value, ok := rawValue(lookup, key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup lookupFunc, key string, fallback int) int {
	if value, ok := rawValue(lookup, key); ok {
		if parsed, err := cast.ToIntE(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func int64WithDefault(lookup lookupFunc, key string, fallback int64) int64 {
	if value, ok := rawValue(lookup, key); ok {
		if parsed, err := cast.ToInt64E(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func floatWithDefault(lookup lookupFunc, key string, fallback float64) float64 {
	if value, ok := rawValue(lookup, key); ok {
		if parsed, err := cast.ToFloat64E(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup lookupFunc, key string, fallback bool) bool {
	value, ok := rawValue(lookup, key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(value) {
	case "yes", "on":
		return true
	case "no", "off":
		return false
	}
	if parsed, err := cast.ToBoolE(value); err == nil {
		return parsed
	}
	return fallback
}

func csvWithDefault(lookup lookupFunc, key string) []string {
	raw, ok := rawValue(lookup, key)
	if !ok {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func mapWithDefault(lookup lookupFunc, key string) map[string]string {
	values := make(map[string]string)
	for _, entry := range csvWithDefault(lookup, key) {
		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if name == "" || value == "" {
			continue
		}
		values[name] = value
	}
	return values
}
