package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// sampleRatio is the fraction of high-volume debug events that get logged.
// A zero value lets everything through.
type sampleRatio struct {
	keep, of uint64
}

func (r sampleRatio) all() bool { return r.keep == 0 || r.of == 0 || r.keep >= r.of }

func (r sampleRatio) String() string {
	if r.all() {
		return "all"
	}
	return strconv.FormatUint(r.keep, 10) + "/" + strconv.FormatUint(r.of, 10)
}

// ratioSampler passes the first keep events out of every window of `of`
// events. It is called once per update on the dispatch path, so it avoids a
// mutex.
type ratioSampler struct {
	ratio atomic.Pointer[sampleRatio]
	seen  atomic.Uint64
}

func newRatioSampler(keep, of int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(keep, of)
	return s
}

// Set replaces the ratio and restarts the window. Non-positive values disable
// sampling.
func (s *ratioSampler) Set(keep, of int) {
	r := sampleRatio{}
	if keep > 0 && of > 0 {
		r = sampleRatio{keep: uint64(keep), of: uint64(of)}
	}
	s.ratio.Store(&r)
	s.seen.Store(0)
}

// Ratio reports the active ratio.
func (s *ratioSampler) Ratio() sampleRatio {
	if r := s.ratio.Load(); r != nil {
		return *r
	}
	return sampleRatio{}
}

// Allow reports whether the next event passes.
func (s *ratioSampler) Allow() bool {
	r := s.Ratio()
	if r.all() {
		return true
	}
	n := s.seen.Add(1) - 1
	return n%r.of < r.keep
}

// parseRatioSpec reads logging.debug_sample. Accepted forms are "1/50",
// "50" (one in fifty), "2%" and the words "all" or "off". The zero pair
// means "log everything"; ok is false for unparseable input.
func parseRatioSpec(spec string) (keep, of int, ok bool) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	switch spec {
	case "", "all", "off", "none", "0":
		return 0, 0, true
	}
	if pct, found := strings.CutSuffix(spec, "%"); found {
		v, err := strconv.ParseFloat(strings.TrimSpace(pct), 64)
		if err != nil || v <= 0 {
			return 0, 0, false
		}
		if v >= 100 {
			return 0, 0, true
		}
		return int(v * 100), 10000, true
	}
	if a, b, found := strings.Cut(spec, "/"); found {
		num, err1 := strconv.Atoi(strings.TrimSpace(a))
		den, err2 := strconv.Atoi(strings.TrimSpace(b))
		if err1 != nil || err2 != nil || num <= 0 || den <= 0 {
			return 0, 0, false
		}
		return num, den, true
	}
	v, err := strconv.Atoi(spec)
	if err != nil || v < 0 {
		return 0, 0, false
	}
	return 1, v, true
}
