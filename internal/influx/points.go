package influx

import (
	"strconv"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/OCAP2/softbody/pkg/core"
)

// SnapshotPoint builds the telemetry point of one vehicle snapshot. Wheel
// slip is reported as the mean and the maximum over all wheels.
func SnapshotPoint(sessionID string, s *core.Snapshot) *influxdb2_write.Point {
	ts := s.Wall
	if ts.IsZero() {
		ts = time.Now()
	}
	p := influxdb2_write.NewPointWithMeasurement("vehicle").
		AddTag("session", sessionID).
		AddTag("vehicle", strconv.Itoa(int(s.Vehicle))).
		AddTag("state", string(s.State)).
		AddField("tick", int64(s.Tick)).
		AddField("sim_time", s.SimTime).
		AddField("rpm", float64(s.RPM)).
		AddField("gear", s.Gear).
		AddField("speed", float64(s.Speed)).
		AddField("turbo_psi", float64(s.Turbo)).
		SetTime(ts)

	if n := len(s.Wheels); n > 0 {
		var sum, peak float64
		for _, w := range s.Wheels {
			slip := float64(w.Slip)
			sum += slip
			peak = max(peak, slip)
		}
		p.AddField("wheel_slip_avg", sum/float64(n))
		p.AddField("wheel_slip_max", peak)
	}
	return p.SortTags()
}

// TickPoint builds the performance point of one registry tick.
func TickPoint(sessionID string, tick uint64, vehicles, steps int, d time.Duration) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement("tick").
		AddTag("session", sessionID).
		AddField("tick", int64(tick)).
		AddField("vehicles", vehicles).
		AddField("substeps", steps).
		AddField("duration_ms", float64(d.Microseconds())/1000).
		SetTime(time.Now())
}
