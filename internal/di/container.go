package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/nirvana-iot/catalog-api/internal/handlers"
	"github.com/nirvana-iot/catalog-api/internal/offerings"
	"github.com/nirvana-iot/catalog-api/internal/platform/auth"
	"github.com/nirvana-iot/catalog-api/internal/platform/config"
	"github.com/nirvana-iot/catalog-api/internal/platform/events"
	pfirestore "github.com/nirvana-iot/catalog-api/internal/platform/firestore"
	"github.com/nirvana-iot/catalog-api/internal/platform/i18n"
	"github.com/nirvana-iot/catalog-api/internal/platform/idempotency"
	"github.com/nirvana-iot/catalog-api/internal/platform/observability"
	"github.com/nirvana-iot/catalog-api/internal/platform/scheduler"
	pstorage "github.com/nirvana-iot/catalog-api/internal/platform/storage"
	"github.com/nirvana-iot/catalog-api/internal/repositories"
	"github.com/nirvana-iot/catalog-api/internal/repositories/bolt"
	firestorerepo "github.com/nirvana-iot/catalog-api/internal/repositories/firestore"
	"github.com/nirvana-iot/catalog-api/internal/repositories/resilient"
	"github.com/nirvana-iot/catalog-api/internal/services"
)

const (
	// JobIdempotencySweep removes expired idempotency keys.
	JobIdempotencySweep = "idempotency-sweep"
	// JobReferenceAudit logs dangling catalog references.
	JobReferenceAudit = "reference-audit"

	defaultJobTimeout = 2 * time.Minute
)

// Services bundles the service-layer contracts that handlers and the CLI rely upon.
type Services struct {
	Catalog    services.CatalogService
	Products   services.ProductService
	Links      services.ServiceLinkService
	Settings   services.SettingsService
	Storefront services.StorefrontService
	Audit      services.ReferenceAuditService
	Uploads    services.UploadService
	System     services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Logger       *zap.Logger
	Build        services.BuildInfo
	Repositories repositories.Registry
	Services     Services
	Idempotency  idempotency.Store
	Scheduler    *scheduler.Scheduler

	closers []func(context.Context) error
}

// Option customises container construction.
type Option func(*containerOptions)

type containerOptions struct {
	registry     repositories.Registry
	healthChecks []repositories.DependencyCheck
	publisher    services.CatalogEventPublisher
	clock        func() time.Time
	build        services.BuildInfo
}

// WithRegistry supplies a prebuilt registry instead of opening the configured store.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *containerOptions) {
		o.registry = reg
	}
}

// WithHealthChecks adds readiness probes, e.g. Secret Manager, to the Firestore health report.
func WithHealthChecks(checks ...repositories.DependencyCheck) Option {
	return func(o *containerOptions) {
		o.healthChecks = append(o.healthChecks, checks...)
	}
}

// WithEventPublisher overrides the Pub/Sub publisher.
func WithEventPublisher(publisher services.CatalogEventPublisher) Option {
	return func(o *containerOptions) {
		o.publisher = publisher
	}
}

// WithClock overrides the clock shared by every service.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithBuildInfo sets the metadata reported on health endpoints.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *containerOptions) {
		o.build = build
	}
}

// NewContainer constructs the runtime dependencies for the configured store driver.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := containerOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.build.StartedAt.IsZero() {
		o.build.StartedAt = o.clock().UTC()
	}

	c := &Container{Config: cfg, Logger: logger, Build: o.build}
	ok := false
	defer func() {
		if !ok {
			_ = c.Close(context.Background())
		}
	}()

	reg, store, err := c.openStore(ctx, o)
	if err != nil {
		return nil, err
	}
	c.Idempotency = store
	c.Repositories = reg

	// Public pages read through the breaker; admin services always reach the store directly.
	public := reg
	var breaker *resilient.Registry
	if cfg.Breaker.Enabled {
		breakerLogger := logger.Named("breaker")
		breaker = resilient.Wrap(reg, resilient.Settings{
			MinRequests:  cfg.Breaker.MinRequests,
			FailureRatio: cfg.Breaker.FailureRatio,
			OpenTimeout:  cfg.Breaker.OpenTimeout,
			OnStateChange: func(name, from, to string) {
				breakerLogger.Warn("store breaker state changed",
					zap.String("breaker", name), zap.String("from", from), zap.String("to", to))
			},
		})
		public = breaker
	}

	publisher := o.publisher
	if publisher == nil {
		if publisher, err = c.openPublisher(ctx); err != nil {
			return nil, err
		}
	}

	svc, err := c.buildServices(o, reg, public, publisher, breaker)
	if err != nil {
		return nil, err
	}
	if svc.Uploads, err = c.buildUploads(o); err != nil {
		return nil, err
	}
	c.Services = svc

	if err := c.buildScheduler(); err != nil {
		return nil, err
	}

	ok = true
	return c, nil
}

func (c *Container) openStore(ctx context.Context, o containerOptions) (repositories.Registry, idempotency.Store, error) {
	if o.registry != nil {
		c.closers = append(c.closers, o.registry.Close)
		if boltReg, ok := o.registry.(*bolt.Registry); ok {
			store, err := idempotency.NewBoltStore(boltReg.DB())
			if err != nil {
				return nil, nil, err
			}
			return o.registry, store, nil
		}
		return o.registry, idempotency.NewMemoryStore(), nil
	}

	switch strings.ToLower(strings.TrimSpace(c.Config.Store.Driver)) {
	case config.StoreDriverBolt:
		reg, err := bolt.Open(c.Config.Store.BoltPath, o.clock)
		if err != nil {
			return nil, nil, err
		}
		c.closers = append(c.closers, reg.Close)
		store, err := idempotency.NewBoltStore(reg.DB())
		if err != nil {
			return nil, nil, err
		}
		c.Logger.Info("catalog store opened", zap.String("driver", config.StoreDriverBolt), zap.String("path", c.Config.Store.BoltPath))
		return reg, store, nil
	case config.StoreDriverFirestore, "":
		provider := pfirestore.NewProvider(c.Config.Firestore)
		checks := []repositories.DependencyCheck{{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check:   provider.Ping,
		}}
		if probe := c.openBucketProbe(ctx); probe != nil {
			c.closers = append(c.closers, func(context.Context) error { return probe.Close() })
			checks = append(checks, repositories.DependencyCheck{Name: "storage", Timeout: time.Second, Check: probe.Check})
		}
		checks = append(checks, o.healthChecks...)
		health, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyClock(o.clock))
		if err != nil {
			_ = provider.Close(ctx)
			return nil, nil, err
		}
		reg, err := firestorerepo.NewRegistry(provider, health, o.clock)
		if err != nil {
			_ = provider.Close(ctx)
			return nil, nil, err
		}
		c.closers = append(c.closers, reg.Close)
		c.Logger.Info("catalog store opened", zap.String("driver", config.StoreDriverFirestore), zap.String("emulator", provider.EmulatorHost()))
		return reg, idempotency.NewFirestoreStore(provider), nil
	default:
		return nil, nil, fmt.Errorf("di: unknown store driver %q", c.Config.Store.Driver)
	}
}

// openBucketProbe returns nil when uploads are off or the client cannot be created; readiness then
// skips the storage check.
func (c *Container) openBucketProbe(ctx context.Context) *pstorage.BucketProbe {
	if !c.Config.Storage.UploadsEnabled() {
		return nil
	}
	var clientOpts []option.ClientOption
	if file := strings.TrimSpace(c.Config.Firebase.CredentialsFile); file != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(file))
	}
	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		c.Logger.Warn("storage probe disabled", zap.Error(err))
		return nil
	}
	probe, err := pstorage.NewBucketProbe(client, c.Config.Storage.ImagesBucket)
	if err != nil {
		_ = client.Close()
		c.Logger.Warn("storage probe disabled", zap.Error(err))
		return nil
	}
	return probe
}

func (c *Container) openPublisher(ctx context.Context) (services.CatalogEventPublisher, error) {
	topicName := strings.TrimSpace(c.Config.PubSub.CatalogTopic)
	if topicName == "" {
		return services.NoopCatalogEventPublisher(), nil
	}
	projectID := strings.TrimSpace(c.Config.PubSub.ProjectID)
	if projectID == "" {
		projectID = c.Config.Firestore.ProjectID
	}
	var clientOpts []option.ClientOption
	if file := strings.TrimSpace(c.Config.Firebase.CredentialsFile); file != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(file))
	}
	client, err := pubsub.NewClient(ctx, projectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("di: pubsub client: %w", err)
	}
	publisher, err := events.NewPubSubPublisher(client.Topic(topicName))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	c.closers = append(c.closers, func(context.Context) error {
		publisher.Stop()
		return client.Close()
	})
	return publisher, nil
}

func (c *Container) buildServices(o containerOptions, reg, public repositories.Registry, publisher services.CatalogEventPublisher, breaker *resilient.Registry) (Services, error) {
	var (
		svc       Services
		err       error
		directory = offerings.Default()
		logEvent  = observability.EventLogger(c.Logger.Named("catalog"))
	)

	if svc.Catalog, err = services.NewCatalogService(services.CatalogServiceDeps{
		Categories: reg.Categories(),
		Events:     publisher,
		Clock:      o.clock,
		Logger:     logEvent,
	}); err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	if svc.Products, err = services.NewProductService(services.ProductServiceDeps{
		Categories: reg.Categories(),
		Events:     publisher,
		Clock:      o.clock,
		Logger:     logEvent,
	}); err != nil {
		return Services{}, fmt.Errorf("build product service: %w", err)
	}
	if svc.Links, err = services.NewServiceLinkService(services.ServiceLinkServiceDeps{
		Links:      reg.ServiceLinks(),
		Categories: reg.Categories(),
		Offerings:  directory,
		Events:     publisher,
		Clock:      o.clock,
		Logger:     logEvent,
	}); err != nil {
		return Services{}, fmt.Errorf("build service link service: %w", err)
	}
	if svc.Settings, err = services.NewSettingsService(services.SettingsServiceDeps{
		Settings:   reg.Settings(),
		Categories: reg.Categories(),
		Offerings:  directory,
		Events:     publisher,
		Clock:      o.clock,
		Logger:     logEvent,
	}); err != nil {
		return Services{}, fmt.Errorf("build settings service: %w", err)
	}
	storefrontDeps := services.StorefrontServiceDeps{
		Catalog:   svc.Catalog,
		Links:     svc.Links,
		Settings:  svc.Settings,
		Offerings: directory,
		Logger:    logEvent,
	}
	if public != reg {
		if storefrontDeps.Catalog, err = services.NewCatalogService(services.CatalogServiceDeps{
			Categories: public.Categories(),
			Clock:      o.clock,
			Logger:     logEvent,
		}); err != nil {
			return Services{}, fmt.Errorf("build public catalog service: %w", err)
		}
		if storefrontDeps.Links, err = services.NewServiceLinkService(services.ServiceLinkServiceDeps{
			Links:      public.ServiceLinks(),
			Categories: public.Categories(),
			Offerings:  directory,
			Clock:      o.clock,
			Logger:     logEvent,
		}); err != nil {
			return Services{}, fmt.Errorf("build public service link service: %w", err)
		}
		if storefrontDeps.Settings, err = services.NewSettingsService(services.SettingsServiceDeps{
			Settings:   public.Settings(),
			Categories: public.Categories(),
			Offerings:  directory,
			Clock:      o.clock,
			Logger:     logEvent,
		}); err != nil {
			return Services{}, fmt.Errorf("build public settings service: %w", err)
		}
	}
	if svc.Storefront, err = services.NewStorefrontService(storefrontDeps); err != nil {
		return Services{}, fmt.Errorf("build storefront service: %w", err)
	}
	if svc.Audit, err = services.NewReferenceAuditService(services.ReferenceAuditServiceDeps{
		Categories: reg.Categories(),
		Links:      reg.ServiceLinks(),
		Settings:   reg.Settings(),
		Offerings:  directory,
		Clock:      o.clock,
		Logger:     logEvent,
	}); err != nil {
		return Services{}, fmt.Errorf("build reference audit service: %w", err)
	}

	systemDeps := services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Clock:            o.clock,
		Build:            c.Build,
	}
	if breaker != nil {
		systemDeps.BreakerState = breaker.State
	}
	if svc.System, err = services.NewSystemService(systemDeps); err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	return svc, nil
}

func (c *Container) buildUploads(o containerOptions) (services.UploadService, error) {
	deps := services.UploadServiceDeps{
		Bucket:        c.Config.Storage.ImagesBucket,
		PublicBaseURL: c.Config.Storage.PublicBaseURL,
		MaxBytes:      c.Config.Storage.UploadMaxBytes,
		TTL:           c.Config.Storage.UploadTTL,
		Clock:         o.clock,
		Logger:        observability.EventLogger(c.Logger.Named("uploads")),
	}
	if c.Config.Storage.UploadsEnabled() && strings.TrimSpace(c.Config.Storage.SignerKey) != "" {
		signer, err := pstorage.ParseSignerKey(c.Config.Storage.SignerKey)
		if err != nil {
			return nil, fmt.Errorf("build uploads: %w", err)
		}
		client, err := pstorage.NewClient(signer, pstorage.WithClock(o.clock))
		if err != nil {
			return nil, fmt.Errorf("build uploads: %w", err)
		}
		deps.Signer = client
	} else {
		c.Logger.Info("image uploads disabled", zap.Bool("bucketConfigured", c.Config.Storage.UploadsEnabled()))
	}
	return services.NewUploadService(deps)
}

func (c *Container) buildScheduler() error {
	c.Scheduler = scheduler.New(c.Logger.Named("scheduler"))
	batch := c.Config.Idempotency.CleanupBatchSize
	store := c.Idempotency
	audit := c.Services.Audit

	jobs := []scheduler.Job{
		{
			Name:     JobIdempotencySweep,
			Schedule: c.Config.Maintenance.IdempotencyCleanupSchedule,
			Timeout:  defaultJobTimeout,
			Run: func(ctx context.Context) error {
				removed, err := store.CleanupExpired(ctx, time.Now().UTC(), batch)
				if err != nil {
					return err
				}
				if removed > 0 {
					c.Logger.Info("idempotency keys removed", zap.Int("count", removed))
				}
				return nil
			},
		},
		{
			Name:     JobReferenceAudit,
			Schedule: c.Config.Maintenance.ReferenceAuditSchedule,
			Timeout:  defaultJobTimeout,
			Run: func(ctx context.Context) error {
				_, err := audit.AuditReferences(ctx)
				return err
			},
		},
	}
	for _, job := range jobs {
		if _, err := c.Scheduler.Add(job); err != nil {
			return fmt.Errorf("di: schedule %s: %w", job.Name, err)
		}
	}
	return nil
}

// HTTPOptions carries the authentication middleware built from credentials the container does not own.
type HTTPOptions struct {
	Authenticator *auth.Authenticator
	// Internal guards /internal, normally OIDCValidator.RequireOIDC. Nil rejects every internal request.
	Internal func(http.Handler) http.Handler
	// Global middleware applied before routing, e.g. logging and tracing.
	Middlewares []func(http.Handler) http.Handler
}

// HTTPHandler assembles the router over the container's services.
func (c *Container) HTTPHandler(opts HTTPOptions) (http.Handler, error) {
	if opts.Authenticator == nil {
		return nil, errors.New("di: authenticator is required for admin routes")
	}

	idem := idempotency.Middleware(c.Idempotency,
		idempotency.WithHeader(c.Config.Idempotency.Header),
		idempotency.WithTTL(c.Config.Idempotency.TTL),
		idempotency.WithLogger(c.Logger.Named("idempotency")),
	)

	adminCatalog := handlers.NewAdminCatalogHandlers(c.Services.Catalog, c.Services.Products,
		handlers.WithAdminCatalogIdempotency(idem))
	adminLinks := handlers.NewAdminLinkHandlers(c.Services.Links)
	adminSettings := handlers.NewAdminSettingsHandlers(c.Services.Settings)
	adminUploads := handlers.NewAdminUploadHandlers(c.Services.Uploads)
	public := handlers.NewPublicCatalogHandlers(c.Services.Storefront)
	maintenance := handlers.NewInternalMaintenanceHandlers(c.Services.Audit, handlers.WithMaintenanceJobs(c.Scheduler))

	health := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(c.Build),
		handlers.WithHealthSystemService(c.Services.System),
	)

	routerOpts := []handlers.Option{
		handlers.WithHealthHandlers(health),
		handlers.WithMiddlewares(opts.Middlewares...),
		handlers.WithMiddlewares(i18n.Middleware),
		handlers.WithPublicMiddlewares(handlers.ClientRateLimit(c.Config.RateLimits.PublicPerMinute, time.Minute, nil)),
		handlers.WithPublicRoutes(public.Routes),
		handlers.WithAdminMiddlewares(opts.Authenticator.RequireFirebaseAuth()),
		handlers.WithAdminRoutes(handlers.CombineRegistrars(
			adminCatalog.Routes,
			adminLinks.Routes,
			adminSettings.Routes,
			adminUploads.Routes,
		)),
		handlers.WithInternalRoutes(maintenance.Routes),
	}
	internal := opts.Internal
	if internal == nil {
		internal = auth.DenyAll()
	}
	routerOpts = append(routerOpts, handlers.WithInternalMiddlewares(internal))
	return handlers.NewRouter(routerOpts...), nil
}

// Close stops background jobs and releases store and messaging clients in reverse order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Scheduler != nil {
		if err := c.Scheduler.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
