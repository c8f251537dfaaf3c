// Package lag turns the sample history into per-mirror lag series.
package lag

import (
	"strconv"
	"time"

	"github.com/MrSnakeDoc/s1lag/internal/history"
	"github.com/MrSnakeDoc/s1lag/internal/logger"
	"github.com/MrSnakeDoc/s1lag/internal/utils"
)

// Point is one lag observation. LagHours is negative when the mirror's
// snapshot predates the sample.
type Point struct {
	Time     time.Time
	LagHours float64
}

// Series maps mirror -> points in record order.
type Series map[string][]Point

// Hours converts a published timestamp and a sample time to lag in hours.
func Hours(published, sampleTime int64) float64 {
	return float64(published-sampleTime) / 3600
}

// Derive rebuilds the series of fqrn from the whole record. ok is false when the
// record holds no usable sample for fqrn. Unparseable mirror values are skipped.
func Derive(rec *history.Record, fqrn string) (Series, bool) {
	out := Series{}
	if rec == nil {
		return out, false
	}

	for i := 0; i < rec.Len(); i++ {
		e := rec.At(i)
		mirrors, ok := e.Mirrors(fqrn)
		if !ok {
			continue
		}
		t := e.Time()
		for _, mirror := range utils.SortedKeys(mirrors) {
			ts, err := strconv.ParseInt(mirrors[mirror], 10, 64)
			if err != nil {
				logger.Warn("entry %d, %s @ %s: skipping unparseable timestamp %q", e.Seq, fqrn, mirror, mirrors[mirror])
				continue
			}
			out[mirror] = append(out[mirror], Point{Time: t, LagHours: Hours(ts, e.SampleTime)})
		}
	}

	if len(out) == 0 {
		logger.Info("%s: no data in record", fqrn)
		return out, false
	}
	return out, true
}

// Mirrors returns mirror names in a stable order.
func (s Series) Mirrors() []string { return utils.SortedKeys(s) }

// Latest returns the last point of every mirror.
func (s Series) Latest() map[string]Point {
	out := make(map[string]Point, len(s))
	for m, pts := range s {
		if len(pts) > 0 {
			out[m] = pts[len(pts)-1]
		}
	}
	return out
}

// Span returns the earliest and latest sample times across all mirrors.
func (s Series) Span() (time.Time, time.Time) {
	var lo, hi time.Time
	for _, pts := range s {
		for _, p := range pts {
			if lo.IsZero() || p.Time.Before(lo) {
				lo = p.Time
			}
			if p.Time.After(hi) {
				hi = p.Time
			}
		}
	}
	return lo, hi
}
