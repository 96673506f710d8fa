package api

import (
	"net/url"
	"regexp"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"resty.dev/v3"
)

var (
	apiLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pairpost_api_request_latency",
			Help:    "Histogram of PairPost API request latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "path", "status_code"},
	)

	idSegment = regexp.MustCompile(`/\d+(/|$)`)
)

// routeOf collapses numeric path segments so ids do not explode label cardinality.
func routeOf(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	for idSegment.MatchString(path) {
		path = idSegment.ReplaceAllString(path, "/:id$1")
	}
	return path
}

func metricMiddleware(_ *resty.Client, response *resty.Response) error {
	apiLatency.WithLabelValues(
		response.Request.Method,
		routeOf(response.Request.URL),
		strconv.Itoa(response.StatusCode()),
	).Observe(response.Duration().Seconds())

	return nil
}
