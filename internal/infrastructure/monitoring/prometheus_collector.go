package monitoring

import (
	"roomcast/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	roomsLoaded      prometheus.Gauge
	roomRequests     *prometheus.CounterVec
	mediaQueued      prometheus.Counter
	mediaSkipped     prometheus.Counter
	mediaWatched     prometheus.Counter
	secondsPlayed    prometheus.Counter
	clientsConnected *prometheus.GaugeVec
	balancerLinks    prometheus.Gauge
	syncMessages     prometheus.Counter
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		roomsLoaded: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "roomcast_rooms_loaded",
			Help: "Number of rooms currently loaded in this monolith",
		}),

		roomRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roomcast_room_requests_total",
			Help: "Room requests processed, by request type and outcome",
		}, []string{"type", "outcome"}),

		mediaQueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomcast_media_queued_total",
			Help: "Total number of videos added to queues",
		}),

		mediaSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomcast_media_skipped_total",
			Help: "Total number of videos skipped",
		}),

		mediaWatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomcast_media_watched_total",
			Help: "Total number of videos watched to completion",
		}),

		secondsPlayed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomcast_playback_seconds_total",
			Help: "Total seconds of playback across all rooms",
		}),

		clientsConnected: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roomcast_clients_connected",
			Help: "Connected clients by transport type and join status",
		}, []string{"client_type", "join_status"}),

		balancerLinks: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "roomcast_balancer_links_connected",
			Help: "Number of connected balancer links",
		}),

		syncMessages: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomcast_sync_messages_total",
			Help: "Sync messages published to clients and peer monoliths",
		}),
	}
}

func (p *PrometheusCollector) RecordRoomLoaded()   { p.roomsLoaded.Inc() }
func (p *PrometheusCollector) RecordRoomUnloaded() { p.roomsLoaded.Dec() }

func (p *PrometheusCollector) RecordRequest(t domain.RequestType, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.roomRequests.WithLabelValues(string(t), outcome).Inc()
}

func (p *PrometheusCollector) RecordMediaQueued(n int) { p.mediaQueued.Add(float64(n)) }
func (p *PrometheusCollector) RecordMediaSkipped()     { p.mediaSkipped.Inc() }
func (p *PrometheusCollector) RecordMediaWatched()     { p.mediaWatched.Inc() }

func (p *PrometheusCollector) RecordSecondsPlayed(seconds float64) {
	if seconds > 0 {
		p.secondsPlayed.Add(seconds)
	}
}

func (p *PrometheusCollector) RecordClientConnected(clientType string, status domain.JoinStatus) {
	p.clientsConnected.WithLabelValues(clientType, status.String()).Inc()
}

func (p *PrometheusCollector) RecordClientDisconnected(clientType string, status domain.JoinStatus) {
	p.clientsConnected.WithLabelValues(clientType, status.String()).Dec()
}

func (p *PrometheusCollector) RecordBalancerConnected()    { p.balancerLinks.Inc() }
func (p *PrometheusCollector) RecordBalancerDisconnected() { p.balancerLinks.Dec() }
func (p *PrometheusCollector) RecordSyncMessage()          { p.syncMessages.Inc() }
