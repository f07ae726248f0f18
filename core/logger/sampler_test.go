package logger

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

func TestParseRatioSpec(t *testing.T) {
	cases := []struct {
		spec     string
		keep, of int
		ok       bool
	}{
		{"", 0, 0, true},
		{"off", 0, 0, true},
		{"1/50", 1, 50, true},
		{" 3 / 10 ", 3, 10, true},
		{"20", 1, 20, true},
		{"5%", 500, 10000, true},
		{"100%", 0, 0, true},
		{"x/2", 0, 0, false},
		{"-3", 0, 0, false},
		{"abc", 0, 0, false},
	}
	for _, tc := range cases {
		keep, of, ok := parseRatioSpec(tc.spec)
		if keep != tc.keep || of != tc.of || ok != tc.ok {
			t.Fatalf("parseRatioSpec(%q) = %d, %d, %v; want %d, %d, %v", tc.spec, keep, of, ok, tc.keep, tc.of, tc.ok)
		}
	}
}

func TestRatioSamplerWindow(t *testing.T) {
	s := newRatioSampler(2, 5)
	var got []bool
	for i := 0; i < 10; i++ {
		got = append(got, s.Allow())
	}
	want := []bool{true, true, false, false, false, true, true, false, false, false}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: allow=%v, want %v (%v)", i, got[i], want[i], got)
		}
	}
	if s.Ratio().String() != "2/5" {
		t.Fatalf("unexpected ratio %s", s.Ratio())
	}

	s.Set(0, 0)
	for i := 0; i < 3; i++ {
		if !s.Allow() {
			t.Fatal("disabled sampler must allow everything")
		}
	}
	if s.Ratio().String() != "all" {
		t.Fatalf("unexpected ratio %s", s.Ratio())
	}
}

func TestRatioSamplerConcurrent(t *testing.T) {
	s := newRatioSampler(1, 4)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if s.Allow() {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	if allowed != 200 {
		t.Fatalf("expected 200 of 800 events, got %d", allowed)
	}
}

func TestAsyncWriterFansOut(t *testing.T) {
	a, b := &bytes.Buffer{}, &bytes.Buffer{}
	w := newAsyncWriter([]io.Writer{a, nil, b}, 16)
	for _, line := range []string{"one\n", "two\n", "three\n"} {
		if err := w.Write([]byte(line)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	for _, buf := range []*bytes.Buffer{a, b} {
		if buf.String() != "one\ntwo\nthree\n" {
			t.Fatalf("unexpected sink content %q", buf.String())
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush after close: %v", err)
	}
}

func TestAsyncWriterCountsLateLines(t *testing.T) {
	buf := &bytes.Buffer{}
	w := newAsyncWriter([]io.Writer{buf}, 0)
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Write([]byte("late\n")); err != nil {
		t.Fatalf("late write: %v", err)
	}
	if w.Dropped() != 1 {
		t.Fatalf("expected one dropped line, got %d", w.Dropped())
	}
	if strings.Contains(buf.String(), "late") {
		t.Fatal("late line must not reach the sink")
	}
}

type brokenSink struct{}

func (brokenSink) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestAsyncWriterReportsSinkError(t *testing.T) {
	w := newAsyncWriter([]io.Writer{brokenSink{}}, 1)
	_ = w.Write([]byte("x\n"))
	if err := w.Close(); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestPreview(t *testing.T) {
	attrs := Preview("files", []string{"a", "b", "c"}, 2)
	if len(attrs) != 3 {
		t.Fatalf("unexpected attrs %v", attrs)
	}
	if attrs[0].Value.Int64() != 3 || attrs[1].Value.String() != "a, b" || !attrs[2].Value.Bool() {
		t.Fatalf("unexpected preview %v", attrs)
	}
	attrs = Preview("files", []string{"a"}, 6)
	if attrs[2].Value.Bool() {
		t.Fatal("short list must not be truncated")
	}
}
