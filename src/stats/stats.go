// Package stats provides always-on, reflect-driven counters for the
// virtual memory subsystem: page faults, evictions, swap-ins/-outs,
// and similar rare-enough-to-count events.
package stats

import "reflect"
import "sync/atomic"
import "strconv"
import "strings"
import "unsafe"

// / Stats gates whether Counter_t.Inc actually counts. The teaching
// / kernel this is adapted from ties counting to a build-time flag so
// / the hot path costs nothing when disabled; here it defaults to on
// / since VM statistics are cheap and useful for tests to assert
// / against (e.g. "exactly one eviction happened").
const Stats = true

// / Counter_t is a statistical counter.
type Counter_t int64

// / Inc increments the counter by one.
func (c *Counter_t) Inc() {
	if Stats {
		n := (*int64)(unsafe.Pointer(c))
		atomic.AddInt64(n, 1)
	}
}

// / Add adds n to the counter.
func (c *Counter_t) Add(n int64) {
	if Stats {
		p := (*int64)(unsafe.Pointer(c))
		atomic.AddInt64(p, n)
	}
}

// / Get reads the counter's current value.
func (c *Counter_t) Get() int64 {
	p := (*int64)(unsafe.Pointer(c))
	return atomic.LoadInt64(p)
}

// / Stats2String converts a struct of Counter_t fields into a printable
// / report, one line per field.
func Stats2String(st interface{}) string {
	v := reflect.ValueOf(st)
	s := ""
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		if strings.HasSuffix(t, "Counter_t") {
			n := v.Field(i).Interface().(Counter_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		}
	}
	return s + "\n"
}
