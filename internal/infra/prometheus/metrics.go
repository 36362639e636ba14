package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PayRequestsTotal counts step one responses by entry point and result.
	PayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnurlp_pay_requests_total",
			Help: "Total number of LNURL-pay metadata requests",
		},
		[]string{"entry", "result"},
	)

	// CallbacksTotal counts step two responses by result.
	CallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnurlp_callbacks_total",
			Help: "Total number of LNURL-pay invoice callbacks",
		},
		[]string{"result"},
	)

	// RequestDuration tracks HTTP handling time.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lnurlp_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Result labels.
const (
	ResultOK            = "ok"
	ResultNotFound      = "not_found"
	ResultProtocolError = "protocol_error"
	ResultError         = "error"
)
