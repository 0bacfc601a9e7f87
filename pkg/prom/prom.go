package prom

import (
	"sync"

	xhttp "github.com/nimasrn/congregation-messenger/pkg/http"
	"github.com/nimasrn/congregation-messenger/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemGateway  = "gateway"
	SystemDispatch = "dispatch"
	SystemDelivery = "delivery"
)

const (
	MetricGatewayRequestsTotal   = "requests_total"
	MetricGatewayRequestDuration = "request_duration_seconds"
	MetricDispatchRetriesTotal   = "retries_total"
	MetricDispatchSegments       = "message_segments"
	MetricDispatchRecipients     = "recipients_total"
	MetricDeliveryReportsTotal   = "reports_total"
)

var segmentBuckets = []float64{1, 2, 3, 4, 6, 8, 12, 16}

var (
	mu         sync.RWMutex
	enabled    bool
	namespace  = "none"
	constants  prometheus.Labels
	counters   = make(map[string]*prometheus.CounterVec)
	histograms = make(map[string]*prometheus.HistogramVec)
)

// Create registers every metric of the service. Until it is called all
// recording helpers are no-ops, which keeps tests free of global registry state.
func Create(host string, env string, nameSpace string) error {
	mu.Lock()
	defer mu.Unlock()
	constants = prometheus.Labels{"env": env, "instance": host}
	namespace = nameSpace

	var err error
	keep := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}

	keep(counterVec(SystemGateway, MetricGatewayRequestsTotal, "op", "outcome"))
	keep(histogramVec(SystemGateway, MetricGatewayRequestDuration, prometheus.DefBuckets, "op"))

	keep(counterVec(SystemDispatch, MetricDispatchRetriesTotal, "label", "outcome"))
	keep(histogramVec(SystemDispatch, MetricDispatchSegments, segmentBuckets, "encoding"))
	keep(counterVec(SystemDispatch, MetricDispatchRecipients, "category", "status"))

	keep(counterVec(SystemDelivery, MetricDeliveryReportsTotal, "status"))

	enabled = err == nil
	return err
}

func ListenAndServer(port string, url string) {
	s := xhttp.CreateServer()
	s.GET(url, fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))
	logger.Info("[metrics-server] listening...", "addr", port, "url", url)
	if err := s.ListenAndServe(port); err != nil {
		logger.Panic("[metrics-server] http listen error", "error", err)
	}
}

func counterVec(subsystem, name string, labels ...string) error {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		ConstLabels: constants,
	}, labels)
	if err := prometheus.Register(c); err != nil {
		return err
	}
	counters[subsystem+name] = c
	return nil
}

func histogramVec(subsystem, name string, buckets []float64, labels ...string) error {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		ConstLabels: constants,
		Buckets:     buckets,
	}, labels)
	if err := prometheus.Register(h); err != nil {
		return err
	}
	histograms[subsystem+name] = h
	return nil
}

func AddCounterVec(subsystem, name string, num float64, labelValues ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	if v, ok := counters[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Add(num)
		return
	}
	logger.Warn("[metrics-server] counter vec not found", "subsystem", subsystem, "name", name)
}

func IncCounterVec(subsystem, name string, labelValues ...string) {
	AddCounterVec(subsystem, name, 1, labelValues...)
}

func AddHistogramVec(subsystem, name string, number float64, labelValues ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	if v, ok := histograms[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Observe(number)
		return
	}
	logger.Warn("[metrics-server] histogram vec not found", "subsystem", subsystem, "name", name)
}

func AddGatewayRequest(op, outcome string, seconds float64) {
	IncCounterVec(SystemGateway, MetricGatewayRequestsTotal, op, outcome)
	if outcome == "success" {
		AddHistogramVec(SystemGateway, MetricGatewayRequestDuration, seconds, op)
	}
}

func IncRetry(label, outcome string) {
	IncCounterVec(SystemDispatch, MetricDispatchRetriesTotal, label, outcome)
}

func AddMessageSegments(encoding string, segments int) {
	AddHistogramVec(SystemDispatch, MetricDispatchSegments, float64(segments), encoding)
}

func AddRecipients(category, status string, n int) {
	AddCounterVec(SystemDispatch, MetricDispatchRecipients, float64(n), category, status)
}

func IncDeliveryReport(status string) {
	IncCounterVec(SystemDelivery, MetricDeliveryReportsTotal, status)
}
