package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	defaultVersion      = "latest"
	referencePrefix     = "secret://"
)

// ErrNotFound is returned when a secret cannot be resolved from Secret Manager or the fallback file.
var ErrNotFound = errors.New("secrets: secret not found")

type accessFunc func(ctx context.Context, name string) (string, error)

// Fetcher resolves secret:// references using Google Secret Manager with caching and a local fallback file.
type Fetcher struct {
	access     accessFunc
	close      func() error
	logger     *zap.Logger
	projectID  string
	versionPin map[string]string

	fallbackPath string
	fallbackOnce sync.Once
	fallbackVals map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	value     string
	fetchedAt time.Time
}

type fetcherConfig struct {
	logger       *zap.Logger
	projectID    string
	fallbackPath string
	access       accessFunc
	clientOpts   []option.ClientOption
	versionPins  map[string]string
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) {
		cfg.logger = logger
	}
}

// WithProject configures the project ID used for shorthand secret references.
func WithProject(projectID string) Option {
	return func(cfg *fetcherConfig) {
		cfg.projectID = strings.TrimSpace(projectID)
	}
}

// WithFallbackFile overrides the path to the local fallback secrets file.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) {
		cfg.fallbackPath = strings.TrimSpace(path)
	}
}

// WithAccessFunc injects a secret access function in place of a real Secret Manager client (primarily for tests).
func WithAccessFunc(fn func(ctx context.Context, name string) (string, error)) Option {
	return func(cfg *fetcherConfig) {
		cfg.access = fn
	}
}

// WithClientOptions forwards Cloud client options when constructing the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// WithVersionPins sets explicit version overrides keyed by secret name.
func WithVersionPins(pins map[string]string) Option {
	return func(cfg *fetcherConfig) {
		cfg.versionPins = copyStringMap(pins)
	}
}

// NewFetcher builds a Fetcher with secret caching and local fallback support.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger:       zap.NewNop(),
		fallbackPath: defaultFallbackPath,
		versionPins:  map[string]string{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	fetcher := &Fetcher{
		logger:       cfg.logger,
		projectID:    cfg.projectID,
		versionPin:   cfg.versionPins,
		fallbackPath: cfg.fallbackPath,
		cache:        map[string]cacheEntry{},
	}

	if cfg.access != nil {
		fetcher.access = cfg.access
		return fetcher, nil
	}

	client, err := secretmanager.NewClient(ctx, cfg.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("secrets: create client: %w", err)
	}
	fetcher.access = func(ctx context.Context, name string) (string, error) {
		resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
		if err != nil {
			return "", err
		}
		if resp.GetPayload() == nil {
			return "", ErrNotFound
		}
		return string(resp.GetPayload().GetData()), nil
	}
	fetcher.close = client.Close
	return fetcher, nil
}

// Close releases the Secret Manager client when the fetcher owns one.
func (f *Fetcher) Close() error {
	if f == nil || f.close == nil {
		return nil
	}
	return f.close()
}

// ResolveSecret resolves a secret:// reference. It satisfies config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	if f == nil {
		return "", errors.New("secrets: fetcher is nil")
	}

	name, key, err := f.canonicalName(ref)
	if err != nil {
		return "", err
	}

	f.mu.RLock()
	entry, cached := f.cache[name]
	f.mu.RUnlock()
	if cached {
		return entry.value, nil
	}

	value, err := f.access(ctx, name)
	if err != nil {
		if status.Code(err) == codes.NotFound || errors.Is(err, ErrNotFound) {
			if fallback, ok := f.fallbackValue(key); ok {
				f.logger.Warn("secrets: using local fallback value", zap.String("secret", key))
				return fallback, nil
			}
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", fmt.Errorf("secrets: access %s: %w", key, err)
	}

	f.mu.Lock()
	f.cache[name] = cacheEntry{value: value, fetchedAt: time.Now()}
	f.mu.Unlock()
	return value, nil
}

// canonicalName expands shorthand references into full Secret Manager version names.
// Accepted forms are secret://projects/P/secrets/S/versions/V, secret://name@version, and secret://name.
func (f *Fetcher) canonicalName(ref string) (name, key string, err error) {
	trimmed := strings.TrimSpace(ref)
	trimmed = strings.TrimPrefix(trimmed, referencePrefix)
	if trimmed == "" {
		return "", "", errors.New("secrets: empty secret reference")
	}

	if strings.HasPrefix(trimmed, "projects/") {
		return trimmed, trimmed, nil
	}

	secretName := trimmed
	version := defaultVersion
	if at := strings.LastIndex(trimmed, "@"); at >= 0 {
		secretName = trimmed[:at]
		version = trimmed[at+1:]
	}
	if pinned, ok := f.versionPin[secretName]; ok && pinned != "" {
		version = pinned
	}
	if secretName == "" || version == "" {
		return "", "", fmt.Errorf("secrets: malformed reference %q", ref)
	}
	if f.projectID == "" {
		return "", "", fmt.Errorf("secrets: project id required to resolve %q", ref)
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", f.projectID, secretName, version), secretName, nil
}

func (f *Fetcher) fallbackValue(key string) (string, bool) {
	f.fallbackOnce.Do(func() {
		f.fallbackVals, f.fallbackErr = loadFallbackFile(f.fallbackPath)
		if f.fallbackErr != nil {
			f.logger.Warn("secrets: fallback file unavailable", zap.Error(f.fallbackErr))
		}
	})
	if f.fallbackVals == nil {
		return "", false
	}
	value, ok := f.fallbackVals[key]
	return value, ok
}

func loadFallbackFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := map[string]string{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		values[key] = strings.TrimSpace(parts[1])
	}
	return values, scanner.Err()
}

func copyStringMap(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
