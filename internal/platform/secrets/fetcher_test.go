package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newTestFetcher(t *testing.T, access accessFunc, opts ...Option) *Fetcher {
	t.Helper()
	opts = append([]Option{WithAccessFunc(access), WithProject("demo-project"), WithFallbackFile("")}, opts...)
	fetcher, err := NewFetcher(context.Background(), opts...)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	return fetcher
}

func TestResolveSecretShorthand(t *testing.T) {
	var requested string
	fetcher := newTestFetcher(t, func(_ context.Context, name string) (string, error) {
		requested = name
		return "s3cret", nil
	})

	value, err := fetcher.ResolveSecret(context.Background(), "secret://canadapost-api-key")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if value != "s3cret" {
		t.Errorf("value = %q, want s3cret", value)
	}
	want := "projects/demo-project/secrets/canadapost-api-key/versions/latest"
	if requested != want {
		t.Errorf("requested = %q, want %q", requested, want)
	}
}

func TestResolveSecretVersionSuffixAndPins(t *testing.T) {
	var requested []string
	fetcher := newTestFetcher(t, func(_ context.Context, name string) (string, error) {
		requested = append(requested, name)
		return "v", nil
	}, WithVersionPins(map[string]string{"stripe-api-key": "7"}))

	if _, err := fetcher.ResolveSecret(context.Background(), "secret://tax-api-key@3"); err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if _, err := fetcher.ResolveSecret(context.Background(), "secret://stripe-api-key"); err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}

	wants := []string{
		"projects/demo-project/secrets/tax-api-key/versions/3",
		"projects/demo-project/secrets/stripe-api-key/versions/7",
	}
	for i, want := range wants {
		if requested[i] != want {
			t.Errorf("request %d = %q, want %q", i, requested[i], want)
		}
	}
}

func TestResolveSecretCaching(t *testing.T) {
	calls := 0
	fetcher := newTestFetcher(t, func(_ context.Context, _ string) (string, error) {
		calls++
		return "cached", nil
	})

	for i := 0; i < 3; i++ {
		if _, err := fetcher.ResolveSecret(context.Background(), "secret://tax-api-key"); err != nil {
			t.Fatalf("ResolveSecret call %d: %v", i, err)
		}
	}
	if calls != 1 {
		t.Errorf("access calls = %d, want 1", calls)
	}
}

func TestResolveSecretFallbackFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".secrets.local")
	if err := os.WriteFile(path, []byte("# local secrets\ntax-api-key=from-file\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}

	fetcher := newTestFetcher(t, func(_ context.Context, _ string) (string, error) {
		return "", status.Error(codes.NotFound, "missing")
	}, WithFallbackFile(path))

	value, err := fetcher.ResolveSecret(context.Background(), "secret://tax-api-key")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if value != "from-file" {
		t.Errorf("value = %q, want from-file", value)
	}
}

func TestResolveSecretNotFound(t *testing.T) {
	fetcher := newTestFetcher(t, func(_ context.Context, _ string) (string, error) {
		return "", status.Error(codes.NotFound, "missing")
	})

	_, err := fetcher.ResolveSecret(context.Background(), "secret://unknown-key")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveSecretFullResourceName(t *testing.T) {
	var requested string
	fetcher := newTestFetcher(t, func(_ context.Context, name string) (string, error) {
		requested = name
		return "x", nil
	})

	ref := "secret://projects/other/secrets/key/versions/2"
	if _, err := fetcher.ResolveSecret(context.Background(), ref); err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if requested != "projects/other/secrets/key/versions/2" {
		t.Errorf("requested = %q", requested)
	}
}
