package httptransport

import "expvar"

var (
	metricEventsConnectionsTotal  = expvar.NewInt("debug_sse_connections_total")
	metricEventsConnectionsActive = expvar.NewInt("debug_sse_connections_active")
)
