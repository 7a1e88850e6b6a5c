package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/lumi-core/internal/ledger"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	Ledger        LedgerMetrics    `json:"ledger"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          *ConnMetrics     `json:"mqtt,omitempty"`
	InfluxDB      *ConnMetrics     `json:"influxdb,omitempty"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// LedgerMetrics contains record counts and the ledger position.
type LedgerMetrics struct {
	Height    ledger.Height `json:"height"`
	Devices   int           `json:"devices"`
	Groups    int           `json:"groups"`
	Schedules int           `json:"schedules"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// ConnMetrics reports an external connection.
type ConnMetrics struct {
	Connected bool `json:"connected"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns runtime, ledger and connection metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	devices, groups, schedules := s.ledger.Counts()
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Ledger: LedgerMetrics{
			Height:    s.ledger.Height(),
			Devices:   devices,
			Groups:    groups,
			Schedules: schedules,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
	}

	if s.mqtt != nil {
		metrics.MQTT = &ConnMetrics{Connected: s.mqtt.IsConnected()}
	}
	if s.influx != nil {
		metrics.InfluxDB = &ConnMetrics{Connected: s.influx.IsConnected()}
	}
	if s.db != nil {
		st := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: st.OpenConnections,
			InUse:           st.InUse,
			Idle:            st.Idle,
			WaitCount:       st.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
