package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/coastalcannabis/checkout-api/internal/di"
	domain "github.com/coastalcannabis/checkout-api/internal/domain"
	"github.com/coastalcannabis/checkout-api/internal/handlers"
	"github.com/coastalcannabis/checkout-api/internal/integrations/canadapost"
	"github.com/coastalcannabis/checkout-api/internal/integrations/covacustomer"
	"github.com/coastalcannabis/checkout-api/internal/integrations/covatax"
	"github.com/coastalcannabis/checkout-api/internal/payments"
	"github.com/coastalcannabis/checkout-api/internal/platform/config"
	pfirestore "github.com/coastalcannabis/checkout-api/internal/platform/firestore"
	"github.com/coastalcannabis/checkout-api/internal/platform/idempotency"
	"github.com/coastalcannabis/checkout-api/internal/platform/jobs"
	"github.com/coastalcannabis/checkout-api/internal/platform/observability"
	"github.com/coastalcannabis/checkout-api/internal/platform/secrets"
	"github.com/coastalcannabis/checkout-api/internal/repositories"
	firestoreRepo "github.com/coastalcannabis/checkout-api/internal/repositories/firestore"
	"github.com/coastalcannabis/checkout-api/internal/services"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		panic("logger init failed: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	started := time.Now().UTC()
	ctx := observability.WithLogger(context.Background(), logger)

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("secret fetcher init failed", zap.Error(err))
	}
	defer func() {
		_ = fetcher.Close()
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	build := buildInfoFromEnv(started)

	provider := pfirestore.NewProvider(cfg.Firestore)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Close(closeCtx); err != nil {
			logger.Warn("firestore close failed", zap.Error(err))
		}
	}()

	firestoreClient, err := provider.Client(ctx)
	if err != nil {
		logger.Fatal("firestore client init failed", zap.Error(err))
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
	if err != nil {
		logger.Fatal("pubsub client init failed", zap.Error(err))
	}
	defer func() {
		_ = pubsubClient.Close()
	}()

	completionTopic := pubsubClient.Topic(cfg.Events.CompletionTopic)
	defer completionTopic.Stop()

	publisher, err := jobs.NewPubSubCompletionPublisher(completionTopic)
	if err != nil {
		logger.Fatal("completion publisher init failed", zap.Error(err))
	}

	taxClient, err := covatax.NewClient(covatax.Config{
		Endpoint: cfg.Tax.Endpoint,
		APIKey:   cfg.Tax.APIKey,
		Timeout:  cfg.Tax.Timeout,
		Logger:   newEventLogger(logger.Named("covatax")),
	})
	if err != nil {
		logger.Fatal("tax client init failed", zap.Error(err))
	}

	carrierClient, err := canadapost.NewClient(canadapost.Config{
		Endpoint:         cfg.CanadaPost.Endpoint,
		Credentials:      cfg.CanadaPost.APIKey,
		CustomerNumber:   cfg.CanadaPost.CustomerNumber,
		OriginPostalCode: cfg.CanadaPost.OriginPostalCode,
		Timeout:          cfg.CanadaPost.Timeout,
		Logger:           newEventLogger(logger.Named("canadapost")),
	})
	if err != nil {
		logger.Fatal("carrier client init failed", zap.Error(err))
	}

	customerClient, err := covacustomer.NewClient(covacustomer.Config{
		Endpoint: cfg.Customers.Endpoint,
		APIKey:   cfg.Customers.APIKey,
		Timeout:  cfg.Customers.Timeout,
		Logger:   newEventLogger(logger.Named("covacustomer")),
	})
	if err != nil {
		logger.Fatal("customer client init failed", zap.Error(err))
	}

	verifier, err := payments.NewStripePaymentMethodVerifier(payments.StripeConfig{
		APIKey: cfg.PSP.StripeAPIKey,
	})
	if err != nil {
		logger.Fatal("stripe verifier init failed", zap.Error(err))
	}

	healthRepo, err := newHealthRepository(firestoreClient, completionTopic, fetcher)
	if err != nil {
		logger.Fatal("health repository init failed", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(provider, healthRepo)
	if err != nil {
		logger.Fatal("repository registry init failed", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, di.ContainerDeps{
		Repositories: registry,
		Clients: di.Clients{
			Tax:       taxClient,
			Rates:     carrierRatesClient{client: carrierClient},
			Customers: posCustomerClient{client: customerClient},
			Payments:  verifier,
			Publisher: publisher,
		},
		Logger: newEventLogger(logger.Named("services")),
		Build:  build,
	})
	if err != nil {
		logger.Fatal("container init failed", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(idempotencyStore,
		idempotency.WithMethods(http.MethodPost),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(ctx)
	var cleanupWG sync.WaitGroup
	cleanupTicker := time.NewTicker(time.Hour)
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-cleanupTicker.C:
				if _, err := idempotencyStore.CleanupExpired(cleanupCtx, time.Now().UTC(), 500); err != nil {
					logger.Warn("idempotency cleanup failed", zap.Error(err))
				}
			}
		}
	}()

	checkoutHandlers := handlers.NewCheckoutHandlers(container.Services.Checkout)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(build),
		handlers.WithHealthSystemService(container.Services.System),
	)

	projectID := traceProjectID(cfg)
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger),
			observability.RequestLoggerMiddleware(projectID),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithCheckoutMiddlewares(idempotencyMiddleware),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("checkout api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupTicker.Stop()
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
	}
	project := strings.TrimSpace(os.Getenv("CHECKOUT_SECRET_PROJECT_ID"))
	if project == "" {
		project = strings.TrimSpace(os.Getenv("CHECKOUT_FIRESTORE_PROJECT_ID"))
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if path := strings.TrimSpace(os.Getenv("CHECKOUT_SECRET_FALLBACK_FILE")); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if credentials := strings.TrimSpace(os.Getenv("CHECKOUT_GOOGLE_CREDENTIALS_FILE")); credentials != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentials)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

func buildInfoFromEnv(started time.Time) services.BuildInfo {
	version := strings.TrimSpace(os.Getenv("CHECKOUT_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("CHECKOUT_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(os.Getenv("CHECKOUT_ENVIRONMENT"))
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newHealthRepository(client *firestore.Client, topic *pubsub.Topic, fetcher *secrets.Fetcher) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 3)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if topic != nil {
		t := topic
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				exists, err := t.Exists(ctx)
				if err != nil {
					return err
				}
				if !exists {
					return errors.New("completion topic does not exist")
				}
				return nil
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.ResolveSecret(ctx, secretHealthReference)
				if err == nil || errors.Is(err, secrets.ErrNotFound) {
					return nil
				}
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firestore.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Events.ProjectID)
}

// newEventLogger adapts the named zap logger to the event callback the service
// and integration layers log through.
func newEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		contextual := observability.FromContext(ctx)
		if contextual != nil {
			contextual = contextual.Named(loggerName(logger))
		} else {
			contextual = logger
		}
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		contextual.Debug(event, zapFields...)
	}
}

func loggerName(logger *zap.Logger) string {
	if logger == nil {
		return ""
	}
	return logger.Name()
}

// carrierRatesClient bridges the Canada Post rating client to the shipping
// service's quote contract.
type carrierRatesClient struct {
	client *canadapost.Client
}

func (c carrierRatesClient) Rates(ctx context.Context, destinationPostal string, items []domain.CartLineItem) ([]services.RateQuote, error) {
	quotes, err := c.client.Rates(ctx, destinationPostal, items)
	if err != nil {
		return nil, err
	}
	out := make([]services.RateQuote, 0, len(quotes))
	for _, quote := range quotes {
		out = append(out, services.RateQuote{
			ServiceCode: quote.ServiceCode,
			ServiceName: quote.ServiceName,
			Price:       quote.Price,
			Taxes:       quote.Taxes,
			Adjustments: quote.Adjustments,
		})
	}
	return out, nil
}

// posCustomerClient bridges the POS lookup to the checkout's customer contract.
// A missing record means a first-time buyer, not a failure.
type posCustomerClient struct {
	client *covacustomer.Client
}

func (c posCustomerClient) FindByEmail(ctx context.Context, email string) (domain.Customer, bool, error) {
	record, err := c.client.FindByEmail(ctx, email)
	if errors.Is(err, covacustomer.ErrNotFound) {
		return domain.Customer{}, false, nil
	}
	if err != nil {
		return domain.Customer{}, false, err
	}
	return record, true, nil
}
