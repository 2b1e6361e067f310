package server

import (
	"expvar"
	"time"

	"github.com/facebookgo/stats"
)

// counters are published under /debug/vars
var counters = expvar.NewMap("assetdb")

// expvarStats is a stats.Client which adds everything into counters.
// Averages and histograms keep a total and a count.
type expvarStats struct{}

var _ stats.Client = expvarStats{}

func (expvarStats) BumpAvg(key string, val float64) {
	counters.AddFloat(key+".total", val)
	counters.Add(key+".count", 1)
}

func (expvarStats) BumpSum(key string, val float64) {
	counters.AddFloat(key, val)
}

func (e expvarStats) BumpHistogram(key string, val float64) {
	e.BumpAvg(key, val)
}

func (e expvarStats) BumpTime(key string) interface {
	End()
} {
	return timer{e: e, key: key, start: time.Now()}
}

type timer struct {
	e     expvarStats
	key   string
	start time.Time
}

// End records the elapsed time in seconds.
func (t timer) End() {
	t.e.BumpAvg(t.key+".seconds", time.Since(t.start).Seconds())
}
