package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultTaxEndpoint        = ""
	defaultIntegrationTimeout = 10 * time.Second

	defaultCanadaPostEndpoint = "https://soa-gw.canadapost.ca/rs/ship/price"
	defaultOriginPostalCode   = "V2A5K6"

	defaultTimezone              = "America/Vancouver"
	defaultFreeShippingThreshold = int64(10000)
	defaultDeliveryFee           = int64(400)
	defaultBeverageDeposit       = int64(10)
	defaultSlotLeadTime          = 30 * time.Minute
	defaultSlotLength            = time.Hour
	defaultDeliveryPostalPrefix  = "V2A"
	defaultProvincePostalPattern = `^[Vv]\d[A-Za-z][ ]?\d[A-Za-z]\d$`
	defaultMinimumAge            = 19
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Firestore  FirestoreConfig
	Tax        TaxConfig
	CanadaPost CanadaPostConfig
	Customers  CustomerConfig
	Events     EventsConfig
	PSP        PSPConfig
	Checkout   CheckoutConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores snapshot database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// TaxConfig points at the jurisdiction tax service.
type TaxConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// CanadaPostConfig holds the carrier rating credentials.
type CanadaPostConfig struct {
	Endpoint         string
	CustomerNumber   string
	APIKey           string
	OriginPostalCode string
	Timeout          time.Duration
}

// CustomerConfig points at the POS customer lookup used for coupon history.
type CustomerConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// EventsConfig names the Pub/Sub topic for checkout completion events.
type EventsConfig struct {
	ProjectID       string
	CompletionTopic string
}

// PSPConfig collects payment provider secrets.
type PSPConfig struct {
	StripeAPIKey string
}

// CheckoutConfig carries the jurisdiction business rules. Amounts are cents.
type CheckoutConfig struct {
	Timezone              string
	FreeShippingThreshold int64
	DeliveryFee           int64
	BeverageDeposit       int64
	SlotLeadTime          time.Duration
	SlotLength            time.Duration
	DeliveryPostalPrefix  string
	ProvincePostalPattern string
	MinimumAge            int
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

// Error implements the error interface.
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

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values
// in the map take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the application configuration by combining defaults, .env
// overrides, environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "CHECKOUT_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "CHECKOUT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "CHECKOUT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "CHECKOUT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "CHECKOUT_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "CHECKOUT_FIRESTORE_EMULATOR_HOST", ""),
		},
		Tax: TaxConfig{
			Endpoint: stringWithDefault(lookup, "CHECKOUT_TAX_ENDPOINT", defaultTaxEndpoint),
			APIKey:   stringWithDefault(lookup, "CHECKOUT_TAX_API_KEY", ""),
			Timeout:  durationWithDefault(lookup, "CHECKOUT_TAX_TIMEOUT", defaultIntegrationTimeout),
		},
		CanadaPost: CanadaPostConfig{
			Endpoint:         stringWithDefault(lookup, "CHECKOUT_CANADAPOST_ENDPOINT", defaultCanadaPostEndpoint),
			CustomerNumber:   stringWithDefault(lookup, "CHECKOUT_CANADAPOST_CUSTOMER_NUMBER", ""),
			APIKey:           stringWithDefault(lookup, "CHECKOUT_CANADAPOST_API_KEY", ""),
			OriginPostalCode: stringWithDefault(lookup, "CHECKOUT_CANADAPOST_ORIGIN_POSTAL", defaultOriginPostalCode),
			Timeout:          durationWithDefault(lookup, "CHECKOUT_CANADAPOST_TIMEOUT", defaultIntegrationTimeout),
		},
		Customers: CustomerConfig{
			Endpoint: stringWithDefault(lookup, "CHECKOUT_CUSTOMER_ENDPOINT", ""),
			APIKey:   stringWithDefault(lookup, "CHECKOUT_CUSTOMER_API_KEY", ""),
			Timeout:  durationWithDefault(lookup, "CHECKOUT_CUSTOMER_TIMEOUT", defaultIntegrationTimeout),
		},
		Events: EventsConfig{
			ProjectID:       stringWithDefault(lookup, "CHECKOUT_EVENTS_PROJECT_ID", ""),
			CompletionTopic: stringWithDefault(lookup, "CHECKOUT_EVENTS_COMPLETION_TOPIC", ""),
		},
		PSP: PSPConfig{
			StripeAPIKey: stringWithDefault(lookup, "CHECKOUT_PSP_STRIPE_API_KEY", ""),
		},
		Checkout: CheckoutConfig{
			Timezone:              stringWithDefault(lookup, "CHECKOUT_BUSINESS_TIMEZONE", defaultTimezone),
			FreeShippingThreshold: centsWithDefault(lookup, "CHECKOUT_FREE_SHIPPING_THRESHOLD", defaultFreeShippingThreshold),
			DeliveryFee:           centsWithDefault(lookup, "CHECKOUT_DELIVERY_FEE", defaultDeliveryFee),
			BeverageDeposit:       centsWithDefault(lookup, "CHECKOUT_BEVERAGE_DEPOSIT", defaultBeverageDeposit),
			SlotLeadTime:          durationWithDefault(lookup, "CHECKOUT_SLOT_LEAD_TIME", defaultSlotLeadTime),
			SlotLength:            durationWithDefault(lookup, "CHECKOUT_SLOT_LENGTH", defaultSlotLength),
			DeliveryPostalPrefix:  stringWithDefault(lookup, "CHECKOUT_DELIVERY_POSTAL_PREFIX", defaultDeliveryPostalPrefix),
			ProvincePostalPattern: stringWithDefault(lookup, "CHECKOUT_PROVINCE_POSTAL_PATTERN", defaultProvincePostalPattern),
			MinimumAge:            intWithDefault(lookup, "CHECKOUT_MINIMUM_AGE", defaultMinimumAge),
		},
	}

	// Events default to the snapshot database project when unspecified.
	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Firestore.ProjectID
	}

	secretFields := []struct {
		name  string
		field *string
	}{
		{"Tax.APIKey", &cfg.Tax.APIKey},
		{"CanadaPost.APIKey", &cfg.CanadaPost.APIKey},
		{"Customers.APIKey", &cfg.Customers.APIKey},
		{"PSP.StripeAPIKey", &cfg.PSP.StripeAPIKey},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if cfg.Tax.Endpoint == "" {
		missing = append(missing, "Tax.Endpoint")
	}
	if cfg.Checkout.Timezone == "" {
		missing = append(missing, "Checkout.Timezone")
	}
	if cfg.Checkout.FreeShippingThreshold < 0 {
		missing = append(missing, "Checkout.FreeShippingThreshold")
	}
	if cfg.Checkout.SlotLeadTime < 0 {
		missing = append(missing, "Checkout.SlotLeadTime")
	}
	if cfg.Checkout.SlotLength <= 0 {
		missing = append(missing, "Checkout.SlotLength")
	}
	if cfg.Checkout.MinimumAge <= 0 {
		missing = append(missing, "Checkout.MinimumAge")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
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

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func centsWithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
