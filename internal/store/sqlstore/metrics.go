// Metrics is a gorm.Plugin that republishes *sql.DB.Stats() as
// Prometheus gauges on a refresh tick, registered against a
// caller-supplied prometheus.Registerer.
package sqlstore

import (
	"context"
	"database/sql"
	"reflect"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

var _ gorm.Plugin = &Metrics{}

const defaultRefreshInterval = 15

// Metrics is a gorm.Plugin that periodically samples the pool's
// *sql.DB.Stats() into Prometheus gauges.
type Metrics struct {
	db    *gorm.DB
	stats *dbStats

	refreshInterval uint32
	refreshOnce     sync.Once
	labels          map[string]string
	registerer      prometheus.Registerer
}

// NewMetrics builds a Metrics plugin registering its gauges against reg
// (typically prometheus.DefaultRegisterer).
func NewMetrics(reg prometheus.Registerer, dbName string, refreshInterval uint32) *Metrics {
	if refreshInterval == 0 {
		refreshInterval = defaultRefreshInterval
	}
	labels := map[string]string{}
	if dbName != "" {
		labels["db_name"] = dbName
	}
	return &Metrics{refreshInterval: refreshInterval, labels: labels, registerer: reg}
}

func (m *Metrics) Name() string { return "gorm:prometheus" }

func (m *Metrics) Initialize(db *gorm.DB) error {
	m.db = db
	m.stats = newDBStats(m.registerer, m.labels)

	m.refreshOnce.Do(func() {
		go func() {
			for range time.Tick(time.Duration(m.refreshInterval) * time.Second) {
				m.refresh()
			}
		}()
	})
	return nil
}

func (m *Metrics) refresh() {
	sqlDB, err := m.db.DB()
	if err != nil {
		m.db.Logger.Error(context.Background(), "sqlstore: failed to collect db stats: %v", err)
		return
	}
	m.stats.set(sqlDB.Stats())
}

type dbStats struct {
	MaxOpenConnections prometheus.Gauge
	OpenConnections    prometheus.Gauge
	InUse              prometheus.Gauge
	Idle               prometheus.Gauge
	WaitCount          prometheus.Gauge
	WaitDuration       prometheus.Gauge
	MaxIdleClosed      prometheus.Gauge
	MaxLifetimeClosed  prometheus.Gauge
	MaxIdleTimeClosed  prometheus.Gauge
}

func newDBStats(reg prometheus.Registerer, labels map[string]string) *dbStats {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help, ConstLabels: labels})
	}
	stats := &dbStats{
		MaxOpenConnections: gauge("sqlstore_dbstats_max_open_connections", "Maximum number of open connections to the database."),
		OpenConnections:    gauge("sqlstore_dbstats_open_connections", "Established connections both in use and idle."),
		InUse:              gauge("sqlstore_dbstats_in_use", "Connections currently in use."),
		Idle:               gauge("sqlstore_dbstats_idle", "Idle connections."),
		WaitCount:          gauge("sqlstore_dbstats_wait_count", "Total connections waited for."),
		WaitDuration:       gauge("sqlstore_dbstats_wait_duration_seconds", "Total time blocked waiting for a new connection."),
		MaxIdleClosed:      gauge("sqlstore_dbstats_max_idle_closed", "Connections closed due to SetMaxIdleConns."),
		MaxLifetimeClosed:  gauge("sqlstore_dbstats_max_lifetime_closed", "Connections closed due to SetConnMaxLifetime."),
		MaxIdleTimeClosed:  gauge("sqlstore_dbstats_max_idletime_closed", "Connections closed due to SetConnMaxIdleTime."),
	}
	if reg != nil {
		for _, c := range stats.collectors() {
			reg.MustRegister(c)
		}
	}
	return stats
}

func (s *dbStats) set(dbStats sql.DBStats) {
	s.MaxOpenConnections.Set(float64(dbStats.MaxOpenConnections))
	s.OpenConnections.Set(float64(dbStats.OpenConnections))
	s.InUse.Set(float64(dbStats.InUse))
	s.Idle.Set(float64(dbStats.Idle))
	s.WaitCount.Set(float64(dbStats.WaitCount))
	s.WaitDuration.Set(dbStats.WaitDuration.Seconds())
	s.MaxIdleClosed.Set(float64(dbStats.MaxIdleClosed))
	s.MaxLifetimeClosed.Set(float64(dbStats.MaxLifetimeClosed))
	s.MaxIdleTimeClosed.Set(float64(dbStats.MaxIdleTimeClosed))
}

func (s *dbStats) collectors() []prometheus.Collector {
	v := reflect.ValueOf(*s)
	collectors := make([]prometheus.Collector, 0, v.NumField())
	for i := 0; i < v.NumField(); i++ {
		collectors = append(collectors, v.Field(i).Interface().(prometheus.Gauge))
	}
	return collectors
}
