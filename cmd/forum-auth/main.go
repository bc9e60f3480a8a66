package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-forum-auth"
	"github.com/goliatone/go-forum-auth/activitymap"
	"github.com/goliatone/go-forum-auth/queue"
	"github.com/goliatone/go-forum-auth/repository"
	"github.com/goliatone/go-forum-auth/social"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-print"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
	"golang.org/x/sync/errgroup"
)

// serverConfig holds the process level settings, policy settings live in auth.Config
type serverConfig struct {
	DatabaseDSN string `env:"DATABASE_DSN" envDefault:"file:forum-auth.db?cache=shared"`
	RedisAddr   string `env:"REDIS_ADDR"`
	RedisPrefix string `env:"REDIS_PREFIX" envDefault:"forum:jobs:"`
	Debug       bool   `env:"DEBUG" envDefault:"false"`
}

type App struct {
	config serverConfig
	auth   auth.Config
	db     *bun.DB
	repo   auth.RepositoryManager
	logger *glog.BaseLogger

	service    *auth.Service
	reconciler *social.Reconciler
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("app"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	app := &App{logger: lgr}

	if err := run(app); err != nil {
		app.GetLogger("main").Error("forum-auth stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(app *App) error {
	authCfg, err := auth.LoadConfig()
	if err != nil {
		return err
	}
	app.auth = authCfg

	if err := env.Parse(&app.config); err != nil {
		return err
	}

	if app.config.Debug {
		fmt.Println("============")
		fmt.Println(print.MaybeHighlightJSON(app.auth))
		fmt.Println("============")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer stop()

	if err := WithPersistence(ctx, app); err != nil {
		return err
	}
	defer app.db.Close()

	WithServices(app)

	dispatcher, closeDispatcher := newDispatcher(app)
	defer closeDispatcher()

	relay := auth.NewOutboxRelay(app.repo, dispatcher, app.auth).
		WithLogger(app.GetLogger("auth:outbox"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relay.Run(ctx)
	})

	app.GetLogger("main").Info("forum-auth running, waiting for exit signal")

	return g.Wait()
}

// persistenceConfig adapts serverConfig to the persistence client
type persistenceConfig struct {
	debug  bool
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "forum-auth" }

// WithPersistence opens the database picked by the DSN scheme and runs the
// dialect migrations through the persistence client
func WithPersistence(ctx context.Context, app *App) error {
	dsn := app.config.DatabaseDSN

	var (
		sqldb   *sql.DB
		dialect schema.Dialect
		driver  string
		err     error
	)

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "pgx"
		if sqldb, err = sql.Open(driver, dsn); err != nil {
			return err
		}
		dialect = pgdialect.New()
	} else {
		driver = sqliteshim.ShimName
		if sqldb, err = sql.Open(driver, dsn); err != nil {
			return err
		}
		sqldb.SetMaxOpenConns(1)
		dialect = sqlitedialect.New()

		if _, err := sqldb.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			return err
		}
	}

	client, err := persistence.New(persistenceConfig{
		debug:  app.config.Debug,
		driver: driver,
		server: dsn,
	}, sqldb, dialect)
	if err != nil {
		return err
	}

	client.SetLogger(app.GetLogger("persistence"))

	migrationsFS, err := fs.Sub(auth.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return err
	}
	client.RegisterDialectMigrations(
		migrationsFS,
		persistence.WithDialectSourceLabel("data/sql/migrations"),
		persistence.WithValidationTargets("postgres", "sqlite"),
	)
	if err := client.ValidateDialects(ctx); err != nil {
		return err
	}

	if err := client.Migrate(ctx); err != nil {
		return err
	}

	if report := client.Report(); report != nil && !report.IsZero() {
		app.GetLogger("persistence").Info("migrations applied", "report", report.String())
	}

	app.db = client.DB()
	app.repo = auth.NewRepositoryManager(app.db)
	app.repo.MustValidate()

	return nil
}

// WithServices builds the credential service and the identity reconciler.
// Activity events are written to the auth:activity logger.
func WithServices(app *App) {
	app.service = auth.NewService(app.repo,
		auth.WithConfig(app.auth),
		auth.WithLogger(app.GetLogger("auth")),
		auth.WithActivitySink(activitymap.LogSink(app.GetLogger("auth:activity"))),
	)

	app.reconciler = social.NewReconciler(app.service, repository.NewIdentityRepository(app.db))
}

func newDispatcher(app *App) (auth.Dispatcher, func()) {
	if app.config.RedisAddr == "" {
		app.GetLogger("main").Warn("REDIS_ADDR not set, outbox tasks will only be logged")
		return auth.LogDispatcher{Logger: app.GetLogger("auth:mailer")}, func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: app.config.RedisAddr})
	return queue.NewRedisDispatcher(client, app.config.RedisPrefix), func() {
		_ = client.Close()
	}
}
