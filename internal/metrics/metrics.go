package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "securecloud"

var (
	// RequestsTotal counts handled HTTP requests by method and status.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Handled HTTP requests.",
	}, []string{"method", "status"})

	// UploadsTotal counts successfully stored uploads.
	UploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_total",
		Help:      "Successfully stored file uploads.",
	})

	// ReconcileRecordsRemoved counts metadata rows removed by cleanup runs.
	ReconcileRecordsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_records_removed_total",
		Help:      "Orphaned metadata records removed by reconciliation.",
	})

	// ReconcileBlobsRemoved counts blobs removed by cleanup runs.
	ReconcileBlobsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_blobs_removed_total",
		Help:      "Orphaned blobs removed by reconciliation.",
	})
)

// Register attaches the Prometheus metrics endpoint to the router.
func Register(router *gin.Engine, path string) {
	router.GET(path, gin.WrapH(promhttp.Handler()))
}
