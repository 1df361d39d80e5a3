package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency     = metric.NewHistogram("1m1s")
	SentPacketPerSecond = metric.NewCounter("10s1s")
	RecvPacketPerSecond = metric.NewCounter("10s1s")
	SentBytesPerSecond  = metric.NewCounter("10s1s")
	RecvBytesPerSecond  = metric.NewCounter("10s1s")
	MalformedPerSecond  = metric.NewCounter("10s1s")

	ClientRequests  = metric.NewCounter("1m1s")
	QueriesResolved = metric.NewCounter("1m1s")
	QueriesUnrouted = metric.NewCounter("1m1s")
	HopsExpired     = metric.NewCounter("1m1s")
	RouterWarnings  = metric.NewCounter("1m1s")
	QueryLatency    = metric.NewHistogram("1m1s")

	OpenHops       = metric.NewGauge("1m1s")
	PendingClients = metric.NewGauge("1m1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("station:SentPacket/s", SentPacketPerSecond)
	expvar.Publish("station:RecvPacket/s", RecvPacketPerSecond)
	expvar.Publish("station:SentBytes/s", SentBytesPerSecond)
	expvar.Publish("station:RecvBytes/s", RecvBytesPerSecond)
	expvar.Publish("station:Malformed/s", MalformedPerSecond)
	expvar.Publish("station:DispatchLatency (µs)", DispatchLatency)

	expvar.Publish("station:ClientRequests", ClientRequests)
	expvar.Publish("station:QueriesResolved", QueriesResolved)
	expvar.Publish("station:QueriesUnrouted", QueriesUnrouted)
	expvar.Publish("station:HopsExpired", HopsExpired)
	expvar.Publish("station:RouterWarnings", RouterWarnings)
	expvar.Publish("station:QueryLatency (ms)", QueryLatency)
	expvar.Publish("station:OpenHops", OpenHops)
	expvar.Publish("station:PendingClients", PendingClients)
}
