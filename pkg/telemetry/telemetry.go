// Package telemetry mirrors the gossip log tag stream (§6 of the protocol
// documentation carried in SPEC_FULL.md) into OpenTelemetry instruments,
// following pkg/daemon/metrics.go's package-level-instrument-plus-init()
// pattern: instruments are created once against the global MeterProvider
// and recording is a no-op until pkg/otel.Init installs a real one.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	meter = otel.Meter("gossipsim.node")

	metricActiveSends    metric.Int64Counter
	metricActiveRecvs    metric.Int64Counter
	metricPassiveRecvs   metric.Int64Counter
	metricPassiveSends   metric.Int64Counter
	metricUpdateMagDelta metric.Float64Histogram
	metricPhaseAdvances  metric.Int64Counter
	metricConvergence    metric.Float64Histogram
)

func init() {
	var err error

	metricActiveSends, err = meter.Int64Counter("gossipsim.active_sends",
		metric.WithDescription("ASEND events emitted by the active role"),
		metric.WithUnit("{packets}"),
	)
	if err != nil {
		panic("otel meter: " + err.Error())
	}

	metricActiveRecvs, err = meter.Int64Counter("gossipsim.active_recvs",
		metric.WithDescription("ARECV events: replies observed by the active role"),
		metric.WithUnit("{packets}"),
	)
	if err != nil {
		panic("otel meter: " + err.Error())
	}

	metricPassiveRecvs, err = meter.Int64Counter("gossipsim.passive_recvs",
		metric.WithDescription("PRECV events: unsolicited packets observed by the passive role"),
		metric.WithUnit("{packets}"),
	)
	if err != nil {
		panic("otel meter: " + err.Error())
	}

	metricPassiveSends, err = meter.Int64Counter("gossipsim.passive_sends",
		metric.WithDescription("PSEND events: replies sent by the passive role"),
		metric.WithUnit("{packets}"),
	)
	if err != nil {
		panic("otel meter: " + err.Error())
	}

	metricUpdateMagDelta, err = meter.Float64Histogram("gossipsim.update.delta",
		metric.WithDescription("Magnitude of change applied by an estimate update"),
	)
	if err != nil {
		panic("otel meter: " + err.Error())
	}

	metricPhaseAdvances, err = meter.Int64Counter("gossipsim.phase.advances",
		metric.WithDescription("PHASE events: epoch boundary crossings"),
		metric.WithUnit("{epochs}"),
	)
	if err != nil {
		panic("otel meter: " + err.Error())
	}

	metricConvergence, err = meter.Float64Histogram("gossipsim.convergence.delta",
		metric.WithDescription("Estimate delta recorded at each active tick, for convergence tracking"),
	)
	if err != nil {
		panic("otel meter: " + err.Error())
	}
}

func variantAttr(variant string) attribute.KeyValue {
	return attribute.String("variant", variant)
}

// RecordActiveSend records one ASEND event for variant ("mean", "var",
// "multiphase").
func RecordActiveSend(variant string) {
	metricActiveSends.Add(context.Background(), 1, metric.WithAttributes(variantAttr(variant)))
}

// RecordActiveRecv records one ARECV event.
func RecordActiveRecv(variant string) {
	metricActiveRecvs.Add(context.Background(), 1, metric.WithAttributes(variantAttr(variant)))
}

// RecordPassiveRecv records one PRECV event.
func RecordPassiveRecv(variant string) {
	metricPassiveRecvs.Add(context.Background(), 1, metric.WithAttributes(variantAttr(variant)))
}

// RecordPassiveSend records one PSEND event.
func RecordPassiveSend(variant string) {
	metricPassiveSends.Add(context.Background(), 1, metric.WithAttributes(variantAttr(variant)))
}

// RecordUpdate records an UPDAT event's magnitude of change (|w_new - w_old|).
func RecordUpdate(variant string, magnitude float64) {
	metricUpdateMagDelta.Record(context.Background(), magnitude, metric.WithAttributes(variantAttr(variant)))
}

// RecordPhase records one PHASE event (MultiphaseVarGossip only).
func RecordPhase(variant string) {
	metricPhaseAdvances.Add(context.Background(), 1, metric.WithAttributes(variantAttr(variant)))
}

// RecordConvergenceDelta records the estimate delta observed at an active
// tick, letting an operator graph convergence over time.
func RecordConvergenceDelta(variant string, delta float64) {
	metricConvergence.Record(context.Background(), delta, metric.WithAttributes(variantAttr(variant)))
}
