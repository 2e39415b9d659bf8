// Package config defines the single Config struct loaded at process start.
package config

import (
	"fmt"
	"time"

	"github.com/jinzhu/configor"
)

// StoreDriver selects the ObjectStore backend.
type StoreDriver string

const (
	DriverPostgres StoreDriver = "postgres"
	DriverMySQL    StoreDriver = "mysql"
	DriverMongoDB  StoreDriver = "mongodb"
)

// JobName enumerates the scheduled job inventory.
type JobName string

const (
	JobCurseforgeRefresh      JobName = "curseforge_refresh"
	JobCurseforgeRefreshFull  JobName = "curseforge_refresh_full"
	JobModrinthRefresh        JobName = "modrinth_refresh"
	JobSyncCurseforgeByQueue  JobName = "sync_curseforge_by_queue"
	JobSyncCurseforgeBySearch JobName = "sync_curseforge_by_search"
	JobSyncModrinthByQueue    JobName = "sync_modrinth_by_queue"
	JobSyncModrinthBySearch   JobName = "sync_modrinth_by_search"
	JobCurseforgeCategories   JobName = "curseforge_categories"
	JobModrinthTags           JobName = "modrinth_tags"
	JobGlobalStatistics       JobName = "global_statistics"
)

// AllJobs is the canonical, ordered job inventory.
var AllJobs = []JobName{
	JobCurseforgeRefresh,
	JobCurseforgeRefreshFull,
	JobModrinthRefresh,
	JobSyncCurseforgeByQueue,
	JobSyncCurseforgeBySearch,
	JobSyncModrinthByQueue,
	JobSyncModrinthBySearch,
	JobCurseforgeCategories,
	JobModrinthTags,
	JobGlobalStatistics,
}

// DefaultIntervalSeconds holds each job's default trigger interval, used
// when the operator's config names no interval of its own.
var DefaultIntervalSeconds = map[JobName]int{
	JobCurseforgeRefresh:      2 * 3600,
	JobCurseforgeRefreshFull:  48 * 3600,
	JobModrinthRefresh:        2 * 3600,
	JobSyncCurseforgeByQueue:  5 * 60,
	JobSyncCurseforgeBySearch: 2 * 3600,
	JobSyncModrinthByQueue:    5 * 60,
	JobSyncModrinthBySearch:   2 * 3600,
	JobCurseforgeCategories:   24 * 3600,
	JobModrinthTags:           24 * 3600,
	JobGlobalStatistics:       24 * 3600,
}

type MongoDBConfig struct {
	Host     string `json:"host" default:"localhost"`
	Port     int    `json:"port" default:"27017"`
	Auth     bool   `json:"auth" default:"false"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database" default:"mcim_sync"`
}

type RedisConfig struct {
	Host     string `json:"host" default:"localhost"`
	Port     int    `json:"port" default:"6379"`
	Password string `json:"password"`
	Database int    `json:"database" default:"0"`
}

type SQLConfig struct {
	Host     string `json:"host" default:"localhost"`
	Port     int    `json:"port" default:"5432"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database" default:"mcim_sync"`
}

type DomainRateLimit struct {
	Capacity      float64 `json:"capacity"`
	RefillRate    float64 `json:"refillRate"`
	InitialTokens float64 `json:"initialTokens"`
}

type TelegramConfig struct {
	Enabled bool   `json:"telegramBot" default:"false"`
	BotAPI  string `json:"botApi" default:"https://api.telegram.org/bot"`
	Token   string `json:"botToken"`
	ChatID  string `json:"chatId"`
}

// Config is the single root configuration object, loaded once at startup
// via configor and handed to every component by explicit construction.
// There is no package-level mutable singleton anywhere in this module.
type Config struct {
	Debug bool `json:"debug" default:"false"`

	StoreDriver StoreDriver   `json:"storeDriver" default:"postgres"`
	MongoDB     MongoDBConfig `json:"mongodb"`
	Redis       RedisConfig   `json:"redis"`
	SQL         SQLConfig     `json:"sql"`

	JobConfig map[JobName]bool   `json:"jobConfig"`
	Interval  map[JobName]int    `json:"interval"`
	Cron      map[JobName]string `json:"cronTrigger"`
	UseCron   bool               `json:"useCron" default:"false"`

	MaxWorkers int `json:"maxWorkers" default:"8"`

	CurseforgeChunkSize int `json:"curseforgeChunkSize" default:"1000"`
	ModrinthChunkSize   int `json:"modrinthChunkSize" default:"100"`

	CurseforgeDelaySeconds float64 `json:"curseforgeDelay" default:"1"`
	ModrinthDelaySeconds   float64 `json:"modrinthDelay" default:"1"`

	CurseforgeAPIKey string `json:"curseforgeApiKey"`
	CurseforgeAPI    string `json:"curseforgeApi" default:"https://api.curseforge.com"`
	ModrinthAPI      string `json:"modrinthApi" default:"https://api.modrinth.com"`

	Telegram TelegramConfig `json:"telegram"`

	Proxies string `json:"proxies"`

	DomainRateLimits map[string]DomainRateLimit `json:"domainRateLimits"`

	LogToFile bool   `json:"logToFile" default:"false"`
	LogPath   string `json:"logPath" default:"logs/mcim-sync.log"`
}

// ShutdownTimeout bounds how long Stop waits for in-flight job runs to
// finish before the process exits regardless.
func (c *Config) ShutdownTimeout() time.Duration {
	return 30 * time.Second
}

// JobEnabled reports whether job j is enabled, defaulting to true when
// the operator's config is silent on it.
func (c *Config) JobEnabled(j JobName) bool {
	if c.JobConfig == nil {
		return true
	}
	enabled, ok := c.JobConfig[j]
	if !ok {
		return true
	}
	return enabled
}

// IntervalFor returns the configured interval for j, falling back to the
// job's default trigger.
func (c *Config) IntervalFor(j JobName) int {
	if c.Interval != nil {
		if seconds, ok := c.Interval[j]; ok && seconds > 0 {
			return seconds
		}
	}
	return DefaultIntervalSeconds[j]
}

// CronFor returns the configured crontab expression for j, if any.
func (c *Config) CronFor(j JobName) (string, bool) {
	if c.Cron == nil {
		return "", false
	}
	expr, ok := c.Cron[j]
	return expr, ok
}

// Load parses the config file at path (YAML or JSON, by extension) via
// configor, applying environment variable overrides the way configor always
// does (MCIMSYNC_<FIELD>).
func Load(path string) (*Config, error) {
	cfg := &Config{}
	loader := configor.New(&configor.Config{
		ENVPrefix: "MCIMSYNC",
	})
	if err := loader.Load(cfg, path); err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	return cfg, nil
}
