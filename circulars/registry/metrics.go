package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circulars_submissions_created_total",
		Help: "Submissions created, by submitter kind",
	}, []string{"submitter"})

	submissionsReviewed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circulars_submissions_reviewed_total",
		Help: "Submissions reviewed, by decision",
	}, []string{"decision"})

	orphanBlobsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "circulars_orphan_blobs_discarded_total",
		Help: "Blobs deleted because no record referenced them",
	})
)
