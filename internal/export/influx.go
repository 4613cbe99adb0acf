// Package export pushes resolved roster rows to InfluxDB so the
// canonical per-client telemetry can be graphed and retained outside
// the resolver's own short history.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nugget/netroster/internal/config"
	"github.com/nugget/netroster/internal/roster"
)

const connectTimeout = 10 * time.Second

// Publisher writes one point per resolved row per pass. Writes are
// non-blocking and batched by the client; async write errors surface
// through the logger.
type Publisher struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *slog.Logger
}

// Connect creates the InfluxDB client and verifies connectivity.
func Connect(cfg config.InfluxConfig, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb ping: %w", err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("influxdb ping: server not healthy")
	}

	p := &Publisher{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		logger:   logger,
	}

	go func() {
		for err := range p.writeAPI.Errors() {
			logger.Warn("influxdb async write failed", "error", err)
		}
	}()

	return p, nil
}

// PublishRows queues one point per row, stamped with the pass time.
func (p *Publisher) PublishRows(rows []roster.CanonicalRow, passTime time.Time) {
	for _, row := range rows {
		p.writeAPI.WritePoint(rowPoint(row, passTime))
	}
	p.logger.Debug("influxdb roster queued", "rows", len(rows))
}

// Close flushes pending writes and shuts the client down.
func (p *Publisher) Close() {
	p.writeAPI.Flush()
	p.client.Close()
}

// rowPoint maps a canonical row to the "client" measurement. Tags are
// the low-cardinality identity fields; numeric telemetry lands in
// fields, with nil optionals simply omitted.
func rowPoint(row roster.CanonicalRow, ts time.Time) *write.Point {
	tags := map[string]string{
		"entity_id":       row.EntityID,
		"connection_type": string(row.ConnectionType),
		"band":            string(row.BandType),
	}
	if row.MACNormalized != "" {
		tags["mac"] = row.MACNormalized
	}
	if row.NameDisplay != roster.Unknown {
		tags["name"] = row.NameDisplay
	}

	online := 0
	if row.Online {
		online = 1
	}
	fields := map[string]any{
		"online": online,
	}
	addField := func(name string, v *float64) {
		if v != nil {
			fields[name] = *v
		}
	}
	addField("down_mbps", row.DownSpeedMbps)
	addField("up_mbps", row.UpSpeedMbps)
	addField("tx_rate_mbps", row.TxRateMbps)
	addField("rx_rate_mbps", row.RxRateMbps)
	addField("signal_dbm", row.SignalDbm)
	addField("snr_db", row.SNRDb)
	addField("traffic_bytes", row.TrafficUsageBytes)

	return write.NewPoint("client", tags, fields, ts)
}
