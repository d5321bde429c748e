package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"CHECKOUT_FIRESTORE_PROJECT_ID": "demo-project",
			"CHECKOUT_TAX_ENDPOINT":         "https://tax.example.com",
		}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Checkout.Timezone != "America/Vancouver" {
		t.Errorf("Checkout.Timezone = %q, want America/Vancouver", cfg.Checkout.Timezone)
	}
	if cfg.Checkout.FreeShippingThreshold != 10000 {
		t.Errorf("FreeShippingThreshold = %d, want 10000", cfg.Checkout.FreeShippingThreshold)
	}
	if cfg.Checkout.DeliveryFee != 400 {
		t.Errorf("DeliveryFee = %d, want 400", cfg.Checkout.DeliveryFee)
	}
	if cfg.Checkout.SlotLeadTime != 30*time.Minute {
		t.Errorf("SlotLeadTime = %v, want 30m", cfg.Checkout.SlotLeadTime)
	}
	if cfg.Checkout.MinimumAge != 19 {
		t.Errorf("MinimumAge = %d, want 19", cfg.Checkout.MinimumAge)
	}
	if cfg.Events.ProjectID != "demo-project" {
		t.Errorf("Events.ProjectID = %q, want fallback to Firestore project", cfg.Events.ProjectID)
	}
}

func TestLoadEnvMapOverrides(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"CHECKOUT_FIRESTORE_PROJECT_ID":   "demo-project",
			"CHECKOUT_TAX_ENDPOINT":           "https://tax.example.com",
			"CHECKOUT_SERVER_PORT":            "9090",
			"CHECKOUT_FREE_SHIPPING_THRESHOLD": "12500",
			"CHECKOUT_DELIVERY_POSTAL_PREFIX": "V2B",
			"CHECKOUT_SLOT_LEAD_TIME":         "45m",
		}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.Checkout.FreeShippingThreshold != 12500 {
		t.Errorf("FreeShippingThreshold = %d, want 12500", cfg.Checkout.FreeShippingThreshold)
	}
	if cfg.Checkout.DeliveryPostalPrefix != "V2B" {
		t.Errorf("DeliveryPostalPrefix = %q, want V2B", cfg.Checkout.DeliveryPostalPrefix)
	}
	if cfg.Checkout.SlotLeadTime != 45*time.Minute {
		t.Errorf("SlotLeadTime = %v, want 45m", cfg.Checkout.SlotLeadTime)
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "# local overrides\nCHECKOUT_FIRESTORE_PROJECT_ID=dotenv-project\nexport CHECKOUT_TAX_ENDPOINT=\"https://tax.local\"\nCHECKOUT_CANADAPOST_CUSTOMER_NUMBER='1234567'\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(envPath))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Firestore.ProjectID != "dotenv-project" {
		t.Errorf("Firestore.ProjectID = %q, want dotenv-project", cfg.Firestore.ProjectID)
	}
	if cfg.Tax.Endpoint != "https://tax.local" {
		t.Errorf("Tax.Endpoint = %q, want https://tax.local", cfg.Tax.Endpoint)
	}
	if cfg.CanadaPost.CustomerNumber != "1234567" {
		t.Errorf("CanadaPost.CustomerNumber = %q, want 1234567", cfg.CanadaPost.CustomerNumber)
	}
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}

	fields := vErr.Fields()
	want := map[string]bool{"Firestore.ProjectID": false, "Tax.Endpoint": false}
	for _, f := range fields {
		if _, ok := want[f]; ok {
			want[f] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("validation error missing field %s (got %v)", field, fields)
		}
	}
}

func TestLoadSecretResolution(t *testing.T) {
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://projects/demo/secrets/stripe/versions/latest" {
			return "", errors.New("unexpected ref " + ref)
		}
		return "sk_test_resolved", nil
	})

	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
		WithEnvMap(map[string]string{
			"CHECKOUT_FIRESTORE_PROJECT_ID": "demo-project",
			"CHECKOUT_TAX_ENDPOINT":         "https://tax.example.com",
			"CHECKOUT_PSP_STRIPE_API_KEY":   "sm://projects/demo/secrets/stripe/versions/latest",
		}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.PSP.StripeAPIKey != "sk_test_resolved" {
		t.Errorf("StripeAPIKey = %q, want resolved secret", cfg.PSP.StripeAPIKey)
	}
}

func TestLoadSecretFailure(t *testing.T) {
	resolver := SecretResolverFunc(func(context.Context, string) (string, error) {
		return "", errors.New("permission denied")
	})

	_, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
		WithEnvMap(map[string]string{
			"CHECKOUT_FIRESTORE_PROJECT_ID": "demo-project",
			"CHECKOUT_TAX_ENDPOINT":         "https://tax.example.com",
			"CHECKOUT_TAX_API_KEY":          "secret://projects/demo/secrets/tax/versions/1",
		}),
	)
	if err == nil {
		t.Fatal("expected secret error, got nil")
	}
	var sErr *SecretError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected *SecretError, got %T: %v", err, err)
	}
	if sErr.Ref != "secret://projects/demo/secrets/tax/versions/1" {
		t.Errorf("SecretError.Ref = %q", sErr.Ref)
	}
}
