package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadMetric   = promauto.NewSummary(prometheus.SummaryOpts{Name: "circulars_upload", Help: "Document uploads"})
	downloadMetric = promauto.NewSummary(prometheus.SummaryOpts{Name: "circulars_download", Help: "Document downloads"})
	reviewMetric   = promauto.NewSummary(prometheus.SummaryOpts{Name: "circulars_review", Help: "Submission reviews"})
	listMetric     = promauto.NewSummary(prometheus.SummaryOpts{Name: "circulars_list", Help: "Circular listings"})

	downloadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "circulars_download_bytes_total",
		Help: "Bytes of document content sent to clients",
	})
)
