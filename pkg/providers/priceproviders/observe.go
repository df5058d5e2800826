package priceproviders

import (
	"time"

	"github.com/hoteliq/ratewatch/internal/metrics"
)

// Observe records lookup metrics for one provider call. Adapters call it
// via defer so every exit path is counted.
func Observe(provider string, start time.Time, err error) {
	metrics.LookupsTotal.WithLabelValues(provider).Inc()
	metrics.LookupDurationSeconds.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LookupErrorsTotal.WithLabelValues(provider, string(KindOf(err))).Inc()
	}
}
