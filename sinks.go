package rsihost

import (
	"fmt"
	"os"
	"time"

	"github.com/kuka-rsi/rsihost/internal/broadcast"
	"github.com/kuka-rsi/rsihost/internal/statsdb"
	"github.com/kuka-rsi/rsihost/internal/tracecap"
)

// buildSinks constructs whichever of the Event Broadcaster, Telemetry
// Sink, and Trace Recorder the config enables. Construction failures are
// logged (when Verbose) and treated as "that sink is disabled for this
// session" rather than failing Init: these are best-effort ambient
// consumers, not required for the engine to run.
func buildSinks(cfg Config, instanceID string) (eventSink, telemetrySink, traceSink) {
	var (
		ev  eventSink
		tel telemetrySink
		tr  traceSink
	)

	if cfg.BroadcastEndpoint != "" {
		b, err := broadcast.New(cfg.BroadcastEndpoint, instanceID)
		if err != nil {
			if cfg.Verbose {
				logf("event broadcaster disabled: %v", err)
			}
		} else {
			ev = &broadcastAdapter{b: b}
		}
	}

	if cfg.TelemetryDSN != "" {
		hostname, _ := os.Hostname()
		session := statsdb.SessionRecord{
			InstanceID: instanceID,
			Hostname:   hostname,
			LocalIP:    cfg.LocalIP,
			LocalPort:  cfg.LocalPort,
			Start:      time.Now(),
		}
		s, err := statsdb.Open(cfg.TelemetryDSN, session)
		if err != nil {
			if cfg.Verbose {
				logf("telemetry sink disabled: %v", err)
			}
		} else {
			tel = &telemetryAdapter{s: s, instanceID: instanceID}
		}
	}

	if cfg.TraceCapacity > 0 {
		tr = &traceAdapter{r: tracecap.New(cfg.TraceCapacity)}
	}

	return ev, tel, tr
}

// broadcastAdapter satisfies the engine's eventSink interface on top of
// internal/broadcast.Broadcaster.
type broadcastAdapter struct {
	b *broadcast.Broadcaster
}

func (a *broadcastAdapter) onConnectionChange(connected bool) {
	a.b.PublishConnectionChange(connected)
}

func (a *broadcastAdapter) onStatistics(s Statistics) {
	a.b.PublishStatistics(s)
}

func (a *broadcastAdapter) connected() bool {
	return a.b.Connected()
}

func (a *broadcastAdapter) close() {
	if err := a.b.Close(); err != nil {
		logf("event broadcaster close: %v", err)
	}
}

// telemetryAdapter satisfies the engine's telemetrySink interface on top
// of internal/statsdb.Sink.
type telemetryAdapter struct {
	s          *statsdb.Sink
	instanceID string
}

func (a *telemetryAdapter) onStatistics(s Statistics) {
	a.s.Record(statsdb.StatisticsRecord{
		InstanceID:          a.instanceID,
		Time:                time.Now(),
		PacketsReceived:     s.PacketsReceived,
		PacketsSent:         s.PacketsSent,
		AvgResponseTimeMs:   s.AvgResponseTimeMs,
		MinResponseTimeMs:   s.MinResponseTimeMs,
		MaxResponseTimeMs:   s.MaxResponseTimeMs,
		LateResponses:       s.LateResponses,
		ConnectionLostCount: s.ConnectionLostCount,
		IsConnected:         s.IsConnected,
	})
}

func (a *telemetryAdapter) connected() bool {
	return a.s.Connected()
}

func (a *telemetryAdapter) close() {
	if err := a.s.Close(); err != nil {
		logf("telemetry sink close: %v", err)
	}
}

// traceAdapter satisfies the engine's traceSink interface on top of
// internal/tracecap.Recorder.
type traceAdapter struct {
	r *tracecap.Recorder
}

func (a *traceAdapter) onCartesian(p CartesianPosition) {
	a.r.Record(tracecap.Sample{
		X: p.X, Y: p.Y, Z: p.Z,
		A: p.A, B: p.B, C: p.C,
		TimestampUs: p.TimestampUs,
		IPOC:        p.IPOC,
	})
}

// ExportTrace writes the Trace Recorder's current contents to path as a
// .npy array. Valid at any time the Trace Recorder is enabled
// (Config.TraceCapacity > 0), including after Stop. Returns InitFailed if
// called before Init, InvalidParam if TraceCapacity is zero, and Unknown
// wrapping the underlying error if the write itself fails.
func ExportTrace(path string) error {
	in := get()
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.state == Uninitialized {
		return InitFailed
	}
	adapter, ok := in.eng.tracer.(*traceAdapter)
	if !ok || adapter == nil {
		return InvalidParam
	}
	if err := tracecap.Export(adapter.r, path); err != nil {
		return fmt.Errorf("%w: %v", Unknown, err)
	}
	return nil
}
