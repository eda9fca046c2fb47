package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/tablebook/internal/events"
	"github.com/MarkoPoloResearchLab/tablebook/internal/httpapi"
	"github.com/MarkoPoloResearchLab/tablebook/internal/oplog"
	"github.com/MarkoPoloResearchLab/tablebook/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/tablebook/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
)

const (
	flagDatabaseURL        = "database-url"
	flagStoreDriver        = "store-driver"
	flagListenAddr         = "listen-addr"
	flagAllowedOrigins     = "allowed-origins"
	flagJWTSigningKey      = "jwt-signing-key"
	flagJWTIssuer          = "jwt-issuer"
	flagVenueTimezone      = "venue-timezone"
	flagTxTimeout          = "tx-timeout"
	flagRedisAddr          = "redis-addr"
	flagRateLimitPerMinute = "rate-limit-per-minute"
	flagAMQPURL            = "amqp-url"
	flagEventsQueue        = "events-queue"
	flagTokenUser          = "user"
	flagTokenRole          = "role"
	flagTokenTTL           = "ttl"
	envPrefix              = "BOOKINGD"

	defaultDatabaseURL = "sqlite:///tmp/tablebook.db"
	defaultListenAddr  = ":8080"
	defaultTxTimeout   = 3 * time.Second
	defaultTokenTTL    = 24 * time.Hour

	storeDriverGorm = "gorm"
	storeDriverPgx  = "pgx"
	driverPostgres  = "postgres"
	driverSQLite    = "sqlite"
)

type runtimeConfig struct {
	DatabaseURL string
	StoreDriver string
	TxTimeout   time.Duration
	RedisAddr   string
	AMQPURL     string
	EventsQueue string
	HTTP        httpapi.Config
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bookingd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "bookingd",
		Short:         "Table reservation booking server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	flags.String(flagStoreDriver, storeDriverGorm, "store implementation for postgres: gorm or pgx")
	flags.String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	flags.String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	flags.String(flagJWTSigningKey, "", "HS256 signing key for bearer tokens (required)")
	flags.String(flagJWTIssuer, "", "expected JWT issuer")
	flags.String(flagVenueTimezone, "UTC", "IANA timezone used to derive booking days")
	flags.Duration(flagTxTimeout, defaultTxTimeout, "upper bound for each booking transaction")
	flags.String(flagRedisAddr, "", "redis address for rate limiting (disabled when empty)")
	flags.Int(flagRateLimitPerMinute, 120, "requests per caller per minute")
	flags.String(flagAMQPURL, "", "RabbitMQ URL for status change events (disabled when empty)")
	flags.String(flagEventsQueue, events.DefaultQueue, "queue receiving status change events")

	cmd.AddCommand(newTokenCommand(cfg))
	return cmd
}

func newTokenCommand(cfg *runtimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed bearer token for local testing",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			userValue, _ := cmd.Flags().GetString(flagTokenUser)
			roleValue, _ := cmd.Flags().GetString(flagTokenRole)
			ttl, _ := cmd.Flags().GetDuration(flagTokenTTL)
			token, err := issueToken(cfg.HTTP, userValue, roleValue, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String(flagTokenUser, "", "user id placed in the subject claim (required)")
	cmd.Flags().String(flagTokenRole, string(booking.RoleUser), "role claim: user or admin")
	cmd.Flags().Duration(flagTokenTTL, defaultTokenTTL, "token lifetime")
	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// DATABASE_URL is honoured without the prefix for compatibility with hosting platforms.
	if err := v.BindEnv(flagDatabaseURL, envPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return err
	}
	for _, flagName := range []string{flagDatabaseURL, flagStoreDriver, flagListenAddr, flagAllowedOrigins, flagJWTSigningKey, flagJWTIssuer, flagVenueTimezone, flagTxTimeout, flagRedisAddr, flagRateLimitPerMinute, flagAMQPURL, flagEventsQueue} {
		if err := v.BindPFlag(flagName, cmd.Flag(flagName)); err != nil {
			return err
		}
	}

	location, err := time.LoadLocation(defaultString(v.GetString(flagVenueTimezone), "UTC"))
	if err != nil {
		return fmt.Errorf("%s: %w", flagVenueTimezone, err)
	}

	cfg.DatabaseURL = defaultString(v.GetString(flagDatabaseURL), defaultDatabaseURL)
	cfg.StoreDriver = strings.ToLower(defaultString(v.GetString(flagStoreDriver), storeDriverGorm))
	cfg.TxTimeout = v.GetDuration(flagTxTimeout)
	cfg.RedisAddr = strings.TrimSpace(v.GetString(flagRedisAddr))
	cfg.AMQPURL = strings.TrimSpace(v.GetString(flagAMQPURL))
	cfg.EventsQueue = v.GetString(flagEventsQueue)
	cfg.HTTP = httpapi.Config{
		ListenAddr:         v.GetString(flagListenAddr),
		AllowedOrigins:     httpapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins)),
		JWTSigningKey:      v.GetString(flagJWTSigningKey),
		JWTIssuer:          v.GetString(flagJWTIssuer),
		RequestTimeout:     cfg.TxTimeout + time.Second,
		VenueLocation:      location,
		RateLimitPerMinute: v.GetInt(flagRateLimitPerMinute),
	}

	if cfg.StoreDriver != storeDriverGorm && cfg.StoreDriver != storeDriverPgx {
		return fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
	return cfg.HTTP.Validate()
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	options := []booking.ServiceOption{
		booking.WithOperationLogger(oplog.New(logger)),
		booking.WithTransactionTimeout(cfg.TxTimeout),
		booking.WithVenueLocation(cfg.HTTP.VenueLocation),
	}
	if cfg.AMQPURL != "" {
		publisher, err := events.Dial(cfg.AMQPURL, cfg.EventsQueue, logger.Named("events"))
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := publisher.Close(); closeErr != nil {
				logger.Warn("event publisher close failed", zap.Error(closeErr))
			}
		}()
		options = append(options, booking.WithEventPublisher(publisher))
	}

	clock := func() int64 { return time.Now().UTC().Unix() }
	bookingService, err := booking.NewService(store, clock, options...)
	if err != nil {
		return fmt.Errorf("booking service init: %w", err)
	}

	var limiter *httpapi.RateLimiter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = redisClient.Close() }()
		if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
			logger.Warn("redis unavailable, rate limiting fails open", zap.Error(pingErr))
		}
		limiter = httpapi.NewRateLimiter(redisClient, cfg.HTTP.RateLimitPerMinute, cfg.HTTP.RateLimitPrefix, logger)
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := httpapi.NewRouter(cfg.HTTP, httpapi.Dependencies{
		Service: bookingService,
		Limiter: limiter,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	return httpapi.Run(ctx, cfg.HTTP, router, logger)
}

func openStore(ctx context.Context, cfg *runtimeConfig) (booking.Store, func(), error) {
	driver, sqlitePath, err := resolveDriver(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.StoreDriver == storeDriverPgx {
		if driver != driverPostgres {
			return nil, nil, fmt.Errorf("store driver %s requires a postgres database url", storeDriverPgx)
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pgstore.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pgstore.New(pool), pool.Close, nil
	}

	gormDB, closeDB, err := openDatabase(ctx, driver, cfg.DatabaseURL, sqlitePath)
	if err != nil {
		return nil, nil, err
	}
	if err := prepareSchema(gormDB); err != nil {
		_ = closeDB()
		return nil, nil, err
	}
	return gormstore.New(gormDB), func() { _ = closeDB() }, nil
}

func openDatabase(ctx context.Context, driver string, dsn string, sqlitePath string) (*gorm.DB, func() error, error) {
	var (
		db  *gorm.DB
		err error
	)
	cfg := &gorm.Config{}
	switch driver {
	case driverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case driverSQLite:
		db, err = gorm.Open(sqlite.Open(sqlitePath), cfg)
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	if driver == driverSQLite {
		// sqlite allows one writer; a single connection keeps the partition lock meaningful.
		sqlDB.SetMaxOpenConns(1)
	}
	return db.WithContext(ctx), sqlDB.Close, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return driverPostgres, "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "tablebook.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return driverSQLite, sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return driverSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

// prepareSchema migrates every gorm-backed database, postgres included, so the
// partition lock table exists before the first booking.
func prepareSchema(db *gorm.DB) error {
	if err := gormstore.AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func issueToken(cfg httpapi.Config, userValue string, roleValue string, ttl time.Duration, now time.Time) (string, error) {
	userID, err := booking.NewUserID(userValue)
	if err != nil {
		return "", err
	}
	role, err := booking.ParseRole(roleValue)
	if err != nil {
		return "", err
	}
	caller, err := booking.NewCaller(userID, role)
	if err != nil {
		return "", err
	}
	authenticator, err := httpapi.NewAuthenticator(cfg.JWTSigningKey, cfg.JWTIssuer)
	if err != nil {
		return "", err
	}
	return authenticator.IssueToken(caller, ttl, now)
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
