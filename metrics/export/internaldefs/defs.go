package internaldefs

import (
	"github.com/MrEthical07/authclient"
)

// CounterDef names one client counter for exporters.
type CounterDef struct {
	ID   authclient.MetricID
	Name string
	Help string
}

// HistogramDef names one client histogram for exporters.
type HistogramDef struct {
	ID   authclient.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authclient.MetricRequestSuccess, Name: "authclient_request_success_total", Help: "Logical requests that returned a 2xx response."},
	{ID: authclient.MetricRequestFailure, Name: "authclient_request_failure_total", Help: "Logical requests that returned an error."},
	{ID: authclient.MetricAuthRecovered, Name: "authclient_auth_recovered_total", Help: "401 responses recovered by refresh and replay."},
	{ID: authclient.MetricAuthFailed, Name: "authclient_auth_failed_total", Help: "401 responses that ended the session."},
	{ID: authclient.MetricReplayIssued, Name: "authclient_replay_issued_total", Help: "Replays sent after a 401."},
	{ID: authclient.MetricRefreshSuccess, Name: "authclient_refresh_success_total", Help: "Successful refresh calls."},
	{ID: authclient.MetricRefreshFailure, Name: "authclient_refresh_failure_total", Help: "Failed refresh calls."},
	{ID: authclient.MetricRefreshCoalesced, Name: "authclient_refresh_coalesced_total", Help: "Callers that shared an in-flight refresh."},
	{ID: authclient.MetricProactiveRefresh, Name: "authclient_proactive_refresh_total", Help: "Refreshes started before dispatch."},
	{ID: authclient.MetricForbidden, Name: "authclient_forbidden_total", Help: "403 responses."},
	{ID: authclient.MetricNotFound, Name: "authclient_not_found_total", Help: "404 responses."},
	{ID: authclient.MetricServerError, Name: "authclient_server_error_total", Help: "5xx responses."},
	{ID: authclient.MetricRequestError, Name: "authclient_request_error_total", Help: "Other non-2xx responses."},
	{ID: authclient.MetricNetworkError, Name: "authclient_network_error_total", Help: "Transport failures and timeouts."},
	{ID: authclient.MetricMalformedResponse, Name: "authclient_malformed_response_total", Help: "Responses with an unexpected status class."},
	{ID: authclient.MetricLoginSuccess, Name: "authclient_login_success_total", Help: "Successful logins."},
	{ID: authclient.MetricLoginFailure, Name: "authclient_login_failure_total", Help: "Failed logins."},
	{ID: authclient.MetricRegisterSuccess, Name: "authclient_register_success_total", Help: "Successful registrations."},
	{ID: authclient.MetricRegisterFailure, Name: "authclient_register_failure_total", Help: "Failed registrations."},
	{ID: authclient.MetricLogout, Name: "authclient_logout_total", Help: "Logout operations."},
	{ID: authclient.MetricSessionCleared, Name: "authclient_session_cleared_total", Help: "Session wipes, whatever the cause."},
	{ID: authclient.MetricRedirect, Name: "authclient_redirect_total", Help: "Navigations issued by the pipeline."},
	{ID: authclient.MetricStorageFailure, Name: "authclient_storage_failure_total", Help: "Session writes refused by the storage backend."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authclient.MetricRequestLatency, Name: "authclient_request_latency_seconds", Help: "Per-attempt transport latency."},
}

// AuditDroppedName is the counter exported for dropped audit events.
const AuditDroppedName = "authclient_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Audit events dropped by dispatcher backpressure."

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// client bucket is +Inf and has no entry here.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten buckets into gauges.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the client bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
