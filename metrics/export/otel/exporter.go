package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/authclient"
	"github.com/MrEthical07/authclient/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() authclient.MetricsSnapshot
	AuditDropped() uint64
}

// member is one client counter reported as an attribute value of a family.
type member struct {
	id    authclient.MetricID
	value string
}

// family groups related client counters under one instrument, told apart by
// a single attribute. A family without a key has exactly one member.
type family struct {
	name    string
	help    string
	key     string
	members []member
}

// families covers every client counter exactly once.
var families = []family{
	{
		name: "authclient_requests_total", help: "Logical requests by result.", key: "result",
		members: []member{
			{authclient.MetricRequestSuccess, "success"},
			{authclient.MetricRequestFailure, "failure"},
		},
	},
	{
		name: "authclient_auth_recovery_total", help: "Handling of 401 responses by outcome.", key: "outcome",
		members: []member{
			{authclient.MetricAuthRecovered, "recovered"},
			{authclient.MetricAuthFailed, "signed_out"},
			{authclient.MetricReplayIssued, "replayed"},
		},
	},
	{
		name: "authclient_refreshes_total", help: "Token refresh activity. coalesced counts callers that joined an in-flight exchange.", key: "result",
		members: []member{
			{authclient.MetricRefreshSuccess, "success"},
			{authclient.MetricRefreshFailure, "failure"},
			{authclient.MetricRefreshCoalesced, "coalesced"},
			{authclient.MetricProactiveRefresh, "proactive"},
		},
	},
	{
		name: "authclient_request_failures_total", help: "Failed attempts other than 401 by kind.", key: "kind",
		members: []member{
			{authclient.MetricForbidden, "forbidden"},
			{authclient.MetricNotFound, "not_found"},
			{authclient.MetricServerError, "server"},
			{authclient.MetricRequestError, "request"},
			{authclient.MetricNetworkError, "network"},
			{authclient.MetricMalformedResponse, "malformed"},
		},
	},
	{
		name: "authclient_session_events_total", help: "Session lifecycle operations.", key: "event",
		members: []member{
			{authclient.MetricLoginSuccess, "login"},
			{authclient.MetricLoginFailure, "login_failed"},
			{authclient.MetricRegisterSuccess, "register"},
			{authclient.MetricRegisterFailure, "register_failed"},
			{authclient.MetricLogout, "logout"},
			{authclient.MetricSessionCleared, "cleared"},
		},
	},
	{
		name: "authclient_redirects_total", help: "Navigations issued by the pipeline.",
		members: []member{{id: authclient.MetricRedirect}},
	},
	{
		name: "authclient_storage_failures_total", help: "Session writes refused by the storage backend.",
		members: []member{{id: authclient.MetricStorageFailure}},
	},
}

type observedMember struct {
	id    authclient.MetricID
	attrs metric.ObserveOption
}

type observedFamily struct {
	instrument metric.Int64ObservableCounter
	members    []observedMember
}

// observedHistogram reports cumulative bucket counts on one gauge keyed by
// the "le" attribute, plus the sample count.
type observedHistogram struct {
	id      authclient.MetricID
	buckets metric.Int64ObservableGauge
	bounds  [8]metric.ObserveOption
	count   metric.Int64ObservableGauge
}

// OTelExporter reports client metrics from a single collection callback.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	families     []observedFamily
	histograms   []observedHistogram
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers observable instruments for client on meter.
func NewOTelExporter(meter metric.Meter, client *authclient.Client) (*OTelExporter, error) {
	if client == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, client)
}

// NewOTelExporterFromSource is NewOTelExporter over any metrics source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, f := range families {
		ins, err := meter.Int64ObservableCounter(f.name, metric.WithDescription(f.help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", f.name, err)
		}
		of := observedFamily{instrument: ins}
		for _, m := range f.members {
			attrs := metric.WithAttributes()
			if f.key != "" {
				attrs = metric.WithAttributes(attribute.String(f.key, m.value))
			}
			of.members = append(of.members, observedMember{id: m.id, attrs: attrs})
		}
		e.families = append(e.families, of)
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := observedHistogram{id: def.ID}
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative bucket counts."),
			metric.WithUnit("{attempt}"),
		)
		if err != nil {
			return nil, fmt.Errorf("create histogram bucket gauge %s: %w", def.Name, err)
		}
		h.buckets = buckets
		for i := range h.bounds {
			le := "+Inf"
			if i < len(internaldefs.HistogramUpperBounds) {
				le = strconv.FormatFloat(internaldefs.HistogramUpperBounds[i], 'f', -1, 64)
			}
			h.bounds[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String("le", le)))
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s: %w", def.Name, err)
		}
		h.count = count
		e.histograms = append(e.histograms, h)
		observables = append(observables, buckets, count)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

// observe reads one snapshot per collection. A client with metrics disabled
// has an empty snapshot and only reports dropped audit events.
func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))

	snapshot := e.source.MetricsSnapshot()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 {
		return nil
	}
	for _, f := range e.families {
		for _, m := range f.members {
			o.ObserveInt64(f.instrument, int64(snapshot.Counters[m.id]), m.attrs)
		}
	}
	for _, h := range e.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, n := range cumulative {
			o.ObserveInt64(h.buckets, int64(n), h.bounds[i])
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
