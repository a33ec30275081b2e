package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectedObservers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "activity_bus_connected_observers",
		Help: "Number of currently connected WebSocket observers",
	})

	publishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "activity_bus_published_total",
		Help: "Total number of activity records published to the bus",
	})

	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "activity_bus_dropped_total",
		Help: "Total number of records dropped for non-draining local subscribers",
	})

	heartbeatsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "activity_bus_heartbeats_total",
		Help: "Total number of heartbeat frames received from observers",
	})
)
