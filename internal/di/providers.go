package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ayolclub/travel-auth/internal/app"
	"github.com/ayolclub/travel-auth/internal/config"
	"github.com/ayolclub/travel-auth/internal/database"
	"github.com/ayolclub/travel-auth/internal/health"
	"github.com/ayolclub/travel-auth/internal/http/handler"
	"github.com/ayolclub/travel-auth/internal/http/middleware"
	"github.com/ayolclub/travel-auth/internal/http/router"
	"github.com/ayolclub/travel-auth/internal/mail"
	"github.com/ayolclub/travel-auth/internal/observability"
	"github.com/ayolclub/travel-auth/internal/repository"
	"github.com/ayolclub/travel-auth/internal/security"
	"github.com/ayolclub/travel-auth/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(
	provideObservabilityRuntime,
	provideAppLogger,
)

var RuntimeInfraSet = wire.NewSet(
	provideRuntimeDB,
	provideRedisClient,
	provideAvatarStorage,
	provideReadinessProbeRunner,
)

var RepositorySet = wire.NewSet(
	repository.NewStore,
	repository.NewAccountRepository,
	repository.NewSessionRepository,
)

var SecuritySet = wire.NewSet(
	security.NewDefaultPasswordHasher,
	provideCookieManager,
)

var ServiceSet = wire.NewSet(
	provideMailSender,
	provideCodeNotifier,
	providePendingLoginStore,
	service.NewAccountBinder,
	provideSessionService,
	provideOneTimeCodeService,
	provideAuthService,
	provideTelegramAuthService,
	provideBotLoginService,
	service.NewProfileService,
	wire.Bind(new(service.AuthServiceInterface), new(*service.AuthService)),
	wire.Bind(new(service.TelegramAuthServiceInterface), new(*service.TelegramAuthService)),
	wire.Bind(new(service.BotLoginServiceInterface), new(*service.TelegramBotLoginService)),
	wire.Bind(new(service.ProfileServiceInterface), new(*service.ProfileService)),
	wire.Bind(new(service.SessionResolver), new(*service.SessionService)),
)

var HTTPSet = wire.NewSet(
	provideAuthHandler,
	provideTelegramHandler,
	handler.NewProfileHandler,
	provideGlobalRateLimiter,
	provideAuthRateLimiter,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(provideApp)

// MigrationRunner applies the schema outside the API process.
type MigrationRunner struct {
	cfg *config.Config
	db  *gorm.DB
}

func NewMigrationRunner(cfg *config.Config, db *gorm.DB) *MigrationRunner {
	return &MigrationRunner{cfg: cfg, db: db}
}

func (m *MigrationRunner) Run(ctx context.Context) error {
	return database.Migrate(m.db.WithContext(ctx))
}

func (m *MigrationRunner) Config() *config.Config { return m.cfg }

// Close releases the pooled connections opened for the runner.
func (m *MigrationRunner) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB exposes the connection for maintenance commands that share the runner.
func (m *MigrationRunner) DB() *gorm.DB { return m.db }

func provideObservabilityRuntime(ctx context.Context, cfg *config.Config) (*observability.Runtime, error) {
	bootstrapLogger := observability.NewBootstrapLogger(cfg)
	return observability.InitRuntime(ctx, cfg, bootstrapLogger)
}

func provideAppLogger(cfg *config.Config, runtime *observability.Runtime) *slog.Logger {
	return observability.InitLogger(cfg, runtime.LoggerProvider)
}

func provideOpenDB(cfg *config.Config) (*gorm.DB, error) {
	return database.Open(cfg)
}

func provideRuntimeDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func provideRedisClient(cfg *config.Config, logger *slog.Logger) redis.UniversalClient {
	if !cfg.RedisEnabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	observability.InstrumentRedisClient(client, cfg.RedisKeyPrefix, logger)
	return client
}

func provideAvatarStorage(cfg *config.Config) (service.AvatarStorage, error) {
	if !cfg.MinIOEnabled {
		return service.DisabledAvatarStorage{}, nil
	}
	return service.NewMinIOAvatarStorage(
		cfg.MinIOEndpoint,
		cfg.MinIOAccessKey,
		cfg.MinIOSecretKey,
		cfg.MinIOBucket,
		cfg.MinIOUseSSL,
		cfg.AvatarURLTTL,
	)
}

func provideCookieManager(cfg *config.Config) *security.CookieManager {
	return security.NewCookieManager(cfg.SessionCookieName, cfg.CookieDomain, cfg.CookieSecure, cfg.CookieSameSite)
}

func provideMailSender(cfg *config.Config, logger *slog.Logger) mail.Sender {
	if !cfg.MailEnabled {
		return mail.NewLogSender(logger)
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		TLSMode:  cfg.SMTPTLSMode,
		Timeout:  cfg.SMTPSendTimeout,
	}, logger)
}

func provideCodeNotifier(sender mail.Sender) service.CodeNotifier {
	return service.NewMailCodeNotifier(sender, "")
}

func providePendingLoginStore(cfg *config.Config, redisClient redis.UniversalClient) service.PendingLoginStore {
	if cfg.RedisEnabled && redisClient != nil {
		return service.NewRedisPendingLoginStore(redisClient, cfg.RedisKeyPrefix+":tglogin")
	}
	return service.NewMemoryPendingLoginStore(time.Minute)
}

// newAttemptGuard gives each credential type its own free-attempt budget.
// The cooldown starts small and doubles up to the configured abuse cooldown.
func newAttemptGuard(cfg *config.Config, redisClient redis.UniversalClient, scope string, freeAttempts int) service.AttemptGuard {
	policy := service.AttemptPolicy{
		FreeAttempts: freeAttempts,
		BaseDelay:    30 * time.Second,
		Multiplier:   2,
		MaxDelay:     cfg.AbuseCooldown,
		ResetWindow:  cfg.AbuseWindow,
	}
	if cfg.RedisEnabled && redisClient != nil {
		return service.NewRedisAttemptGuard(redisClient, cfg.RedisKeyPrefix+":guard:"+scope, policy)
	}
	return service.NewMemoryAttemptGuard(policy)
}

func provideSessionService(cfg *config.Config, sessions repository.SessionRepository, accounts repository.AccountRepository) *service.SessionService {
	return service.NewSessionService(sessions, accounts, cfg.SessionPepper, cfg.SessionTTL)
}

func provideOneTimeCodeService(
	cfg *config.Config,
	store repository.Store,
	notifier service.CodeNotifier,
	redisClient redis.UniversalClient,
	logger *slog.Logger,
) *service.OneTimeCodeService {
	guard := newAttemptGuard(cfg, redisClient, "code", cfg.CodeVerifyMaxFails)
	return service.NewOneTimeCodeService(store, notifier, guard, logger, cfg.CodeTTL, cfg.CodeRequestCooldown)
}

func provideAuthService(
	cfg *config.Config,
	store repository.Store,
	codes *service.OneTimeCodeService,
	sessions *service.SessionService,
	hasher *security.PasswordHasher,
	redisClient redis.UniversalClient,
	logger *slog.Logger,
) *service.AuthService {
	guard := newAttemptGuard(cfg, redisClient, "login", cfg.LoginMaxFails)
	return service.NewAuthService(store, codes, sessions, hasher, guard, logger)
}

func provideTelegramAuthService(
	cfg *config.Config,
	binder *service.AccountBinder,
	sessions *service.SessionService,
	logger *slog.Logger,
) *service.TelegramAuthService {
	return service.NewTelegramAuthService(service.TelegramAuthOptions{
		BotToken:     cfg.TelegramBotToken,
		WebAppMaxAge: cfg.TelegramWebAppMaxAge,
		WidgetMaxAge: cfg.TelegramWidgetMaxAge,
	}, binder, sessions, logger)
}

func provideBotLoginService(
	cfg *config.Config,
	store service.PendingLoginStore,
	binder *service.AccountBinder,
	accounts repository.AccountRepository,
	telegramAuth *service.TelegramAuthService,
	logger *slog.Logger,
) *service.TelegramBotLoginService {
	return service.NewTelegramBotLoginService(service.BotLoginOptions{
		BotName:   cfg.TelegramBotName,
		BotSecret: cfg.TelegramBotSecret,
		TTL:       cfg.TelegramPendingTTL,
	}, store, binder, accounts, telegramAuth, logger)
}

func provideAuthHandler(
	authSvc service.AuthServiceInterface,
	profileSvc service.ProfileServiceInterface,
	cookieMgr *security.CookieManager,
	cfg *config.Config,
) *handler.AuthHandler {
	return handler.NewAuthHandler(authSvc, profileSvc, cookieMgr, cfg.SessionTTL)
}

func provideTelegramHandler(
	telegramSvc service.TelegramAuthServiceInterface,
	botSvc service.BotLoginServiceInterface,
	profileSvc service.ProfileServiceInterface,
	cookieMgr *security.CookieManager,
	cfg *config.Config,
) *handler.TelegramHandler {
	return handler.NewTelegramHandler(telegramSvc, botSvc, profileSvc, cookieMgr, cfg.SessionTTL, handler.TelegramRedirects{
		Success: cfg.TelegramRedirectSuccess,
		Failure: cfg.TelegramRedirectFailure,
	})
}

func provideGlobalRateLimiter(cfg *config.Config, redisClient redis.UniversalClient) router.GlobalRateLimiterFunc {
	if cfg.RedisEnabled && redisClient != nil {
		redisLimiter := middleware.NewRedisFixedWindowLimiter(redisClient, cfg.RedisKeyPrefix+":rl:api")
		return middleware.NewDistributedRateLimiter(
			redisLimiter,
			cfg.APIRateLimitPerMin,
			time.Minute,
			middleware.FailOpen,
			"api",
		).Middleware()
	}
	return middleware.NewRateLimiter(cfg.APIRateLimitPerMin, time.Minute, "api").Middleware()
}

func provideAuthRateLimiter(cfg *config.Config, redisClient redis.UniversalClient) router.AuthRateLimiterFunc {
	if cfg.RedisEnabled && redisClient != nil {
		redisLimiter := middleware.NewRedisFixedWindowLimiter(redisClient, cfg.RedisKeyPrefix+":rl:auth")
		return middleware.NewDistributedRateLimiter(
			redisLimiter,
			cfg.AuthRateLimitPerMin,
			time.Minute,
			middleware.FailClosed,
			"auth",
		).Middleware()
	}
	return middleware.NewRateLimiter(cfg.AuthRateLimitPerMin, time.Minute, "auth").Middleware()
}

func provideRouterDependencies(
	authHandler *handler.AuthHandler,
	telegramHandler *handler.TelegramHandler,
	profileHandler *handler.ProfileHandler,
	sessions service.SessionResolver,
	cookieMgr *security.CookieManager,
	globalRateLimiter router.GlobalRateLimiterFunc,
	authRateLimiter router.AuthRateLimiterFunc,
	readiness *health.ProbeRunner,
	cfg *config.Config,
) router.Dependencies {
	return router.Dependencies{
		AuthHandler:       authHandler,
		TelegramHandler:   telegramHandler,
		ProfileHandler:    profileHandler,
		Sessions:          sessions,
		Cookies:           cookieMgr,
		CORSOrigins:       cfg.CORSAllowedOrigins,
		AuthRateLimitRPM:  cfg.AuthRateLimitPerMin,
		APIRateLimitRPM:   cfg.APIRateLimitPerMin,
		GlobalRateLimiter: globalRateLimiter,
		AuthRateLimiter:   authRateLimiter,
		Readiness:         readiness,
		EnableOTelHTTP:    cfg.OTELMetricsEnabled || cfg.OTELTracingEnabled,
	}
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func provideReadinessProbeRunner(
	cfg *config.Config,
	db *gorm.DB,
	redisClient redis.UniversalClient,
	storage service.AvatarStorage,
) *health.ProbeRunner {
	checkers := []health.Checker{health.NewDBChecker(db)}
	if cfg.RedisEnabled {
		checkers = append(checkers, health.NewRedisChecker(redisClient))
	}
	if cfg.MinIOEnabled {
		checkers = append(checkers, health.NewPingChecker("storage", storage))
	}
	return health.NewProbeRunner(cfg.ReadinessProbeTimeout, cfg.ServerStartGracePeriod, checkers...)
}

func provideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	db *gorm.DB,
	redisClient redis.UniversalClient,
	readiness *health.ProbeRunner,
) *app.App {
	return app.New(cfg, logger, server, runtime, db, redisClient, readiness)
}
