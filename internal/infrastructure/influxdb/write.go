package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// sensorMeasurement is the measurement holding all device sensor readings.
const sensorMeasurement = "sensor_readings"

// WriteReading records one validated sensor reading.
//
// This is the telemetry pipeline's sink method: every well-formed
// numeric reading that survives validation lands here. The write is
// non-blocking; data is batched and sent asynchronously, and failures
// surface through the SetOnError callback.
//
// Parameters:
//   - entityID: Device the reading came from (e.g. "device-7")
//   - sensorID: Sensor within the device (e.g. "temp-1")
//   - value: The numeric reading
//   - ts: When the reading was received
//
// Example:
//
//	client.WriteReading("device-7", "temp-1", 21.5, time.Now())
func (c *Client) WriteReading(entityID, sensorID string, value float64, ts time.Time) {
	c.WritePointWithTime(sensorMeasurement,
		map[string]string{
			"device_id": entityID,
			"sensor_id": sensorID,
		},
		map[string]interface{}{
			"value": value,
		},
		ts,
	)

	c.mu.RLock()
	registry := c.registry
	c.mu.RUnlock()
	if registry != nil && c.IsConnected() {
		registry.RecordSinkWrite(nil)
	}
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this for measurements that don't fit WriteReading.
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
