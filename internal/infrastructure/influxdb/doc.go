// Package influxdb records orderlink connection telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library and implements the
// messaging client's metrics sink, so state transitions, reconnect
// attempts, message volume and dropped frames land in a time-series bucket.
//
// # Usage
//
//	sink, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer sink.Close()
//
//	client, err := messaging.New(cfg, nil, messaging.WithMetrics(sink))
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Writes are non-blocking; batch failures reach the SetOnError callback.
// Connection and health check errors are returned directly.
package influxdb
