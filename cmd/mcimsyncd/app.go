// Package main wires mcimsyncd, the mirror-sync daemon: config, stores,
// rate limiter, HTTP client, upstream adapters, per-platform syncers and
// schedulers, and the notifier. Every dependency is passed explicitly at
// construction; there is no package-level mutable state.
package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/config"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/httpclient"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/notify"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/notify/statsd"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/notify/telegram"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/ratelimit"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/scheduler"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store/mongostore"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store/redisqueue"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/store/sqlstore"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/sync/checker"
	cfsyncer "github.com/mcmod-info-mirror/mcim-sync-go/internal/sync/curseforge"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/sync/discovery"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/sync/drain"
	mrsyncer "github.com/mcmod-info-mirror/mcim-sync-go/internal/sync/modrinth"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/upstream/curseforge"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/upstream/modrinth"
)

// App bundles every wired component a job handler needs. It is built once
// at startup and handed to the scheduler's job closures by value capture,
// never through a package-level global.
type App struct {
	Config *config.Config
	Log    *logrus.Entry

	Objects store.ObjectStore
	Sets    store.SetStore

	CF cfComponents
	MR mrComponents

	Scheduler *scheduler.Scheduler
	Notifier  notify.Notifier
}

type cfComponents struct {
	Adapter   *curseforge.Adapter
	Syncer    *cfsyncer.Syncer
	Checker   *checker.CurseForgeChecker
	Drainer   *drain.Drainer
	Discovery *discovery.CurseForgeDiscovery
}

type mrComponents struct {
	Adapter   *modrinth.Adapter
	Syncer    *mrsyncer.Syncer
	Checker   *checker.ModrinthChecker
	Drainer   *drain.Drainer
	Discovery *discovery.ModrinthDiscovery
}

// NewApp wires every component from cfg. It dials the configured object
// store and Redis, but does not start the scheduler; the run command
// does that.
func NewApp(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*App, error) {
	objects, err := openObjectStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: open object store: %w", err)
	}
	if err := objects.Ping(ctx); err != nil {
		return nil, fmt.Errorf("app: object store unreachable: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})
	sets := redisqueue.New(redisClient)

	limiter := ratelimit.NewDomainRateLimiter(cfg.DomainRateLimits)

	cfHTTP := httpclient.New(limiter, log.WithField("component", "curseforge.http"),
		httpclient.WithHeader("x-api-key", cfg.CurseforgeAPIKey), httpclient.WithProxy(cfg.Proxies))
	mrHTTP := httpclient.New(limiter, log.WithField("component", "modrinth.http"), httpclient.WithProxy(cfg.Proxies))

	cfAdapter := curseforge.New(cfHTTP, cfg.CurseforgeAPI)
	mrAdapter := modrinth.New(mrHTTP, cfg.ModrinthAPI)

	cf := cfComponents{
		Adapter:   cfAdapter,
		Syncer:    cfsyncer.New(cfAdapter, objects, log.WithField("component", "curseforge.sync")),
		Checker:   checker.NewCurseForgeChecker(cfAdapter, objects, log.WithField("component", "curseforge.checker")),
		Drainer:   drain.New(sets, objects, store.KindCFMod, cfg.CurseforgeChunkSize, log.WithField("component", "curseforge.drain")),
		Discovery: discovery.NewCurseForgeDiscovery(cfAdapter, objects, cfg.CurseforgeDelaySeconds, log.WithField("component", "curseforge.discovery")),
	}
	mr := mrComponents{
		Adapter:   mrAdapter,
		Syncer:    mrsyncer.New(mrAdapter, objects, log.WithField("component", "modrinth.sync")),
		Checker:   checker.NewModrinthChecker(mrAdapter, objects, log.WithField("component", "modrinth.checker")),
		Drainer:   drain.New(sets, objects, store.KindMRProject, cfg.ModrinthChunkSize, log.WithField("component", "modrinth.drain")),
		Discovery: discovery.NewModrinthDiscovery(mrAdapter, objects, cfg.ModrinthDelaySeconds, log.WithField("component", "modrinth.discovery")),
	}

	var notifier notify.Notifier
	if cfg.Telegram.Enabled {
		notifier = telegram.New(httpclient.New(nil, log.WithField("component", "telegram")), cfg.Telegram.BotAPI, cfg.Telegram.Token, cfg.Telegram.ChatID, log.WithField("component", "telegram"))
	} else {
		notifier = statsd.New(log.WithField("component", "notify"))
	}

	sched := scheduler.New(cfg, log.WithField("component", "scheduler"), "curseforge", "modrinth")

	return &App{
		Config:    cfg,
		Log:       log,
		Objects:   objects,
		Sets:      sets,
		CF:        cf,
		MR:        mr,
		Scheduler: sched,
		Notifier:  notifier,
	}, nil
}

func openObjectStore(cfg *config.Config) (store.ObjectStore, error) {
	switch cfg.StoreDriver {
	case config.DriverMongoDB:
		clientOpts := options.Client().ApplyURI(fmt.Sprintf("mongodb://%s:%d", cfg.MongoDB.Host, cfg.MongoDB.Port))
		if cfg.MongoDB.Auth {
			clientOpts.SetAuth(options.Credential{Username: cfg.MongoDB.User, Password: cfg.MongoDB.Password})
		}
		client, err := mongo.Connect(context.Background(), clientOpts)
		if err != nil {
			return nil, err
		}
		return mongostore.Open(client.Database(cfg.MongoDB.Database)), nil
	default:
		db, err := sqlstore.OpenDB(cfg.SQL, cfg.StoreDriver)
		if err != nil {
			return nil, err
		}
		if err := db.Use(sqlstore.NewMetrics(prometheus.DefaultRegisterer, cfg.SQL.Database, 0)); err != nil {
			return nil, fmt.Errorf("app: register db metrics: %w", err)
		}
		return sqlstore.Open(db)
	}
}
