package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementAuthEvents  = "auth_events"
	measurementRateLimited = "rate_limited"
)

// AuthEvent is one completed account flow as recorded in the time series.
// Email and user ID are deliberately absent: tags must stay low cardinality.
type AuthEvent struct {
	Kind    string // register, login, refresh, ...
	Outcome string // success or failure
	Reason  string // failure reason, empty on success
	At      time.Time
}

// WriteAuthEvent records an account flow outcome. Non-blocking; the point
// is batched and sent asynchronously.
func (c *Client) WriteAuthEvent(ev AuthEvent) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(authEventPoint(ev))
}

// WriteRateLimited records a request rejected by the rate limiter.
func (c *Client) WriteRateLimited(route string) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(
		measurementRateLimited,
		map[string]string{"route": route},
		map[string]interface{}{"count": 1},
		time.Now(),
	))
}

// WritePoint writes a custom point timestamped now.
//
// Example:
//
//	client.WritePoint("directory_stats",
//	    map[string]string{"role": "ROLE_ADMIN"},
//	    map[string]interface{}{"users": 3})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

func authEventPoint(ev AuthEvent) *write.Point {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	fields := map[string]interface{}{"count": 1}
	if ev.Reason != "" {
		fields["reason"] = ev.Reason
	}

	return write.NewPoint(
		measurementAuthEvents,
		map[string]string{
			"kind":    ev.Kind,
			"outcome": ev.Outcome,
		},
		fields,
		at,
	)
}
