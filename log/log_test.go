package log

import (
	"errors"
	"io"
	"testing"
	"time"
)

var (
	sampleInt      = 3
	sampleBytes    = []byte("123")
	sampleList     = []int64{10, 0, -10}
	sampleDuration = time.Second

	errSample = errors.New("some error")
)

func doLogs() {
	Infof("cached %d artifacts for circuit %x", sampleInt, sampleBytes)
	Debugw("loading artifact", "key", "verified-builder:v1:proving-key", "size", 1024)
	Errorf("cannot commit cache entry: %v", errSample)
	Warnw("various types",
		"list", sampleList,
		"duration", sampleDuration,
	)
	Error(errSample)
}

func TestCheckInvalidChars(t *testing.T) {
	t.Cleanup(func() { panicOnInvalidChars = false })

	v := []byte{'h', 'e', 'l', 'l', 'o', 0xff, 'w', 'o', 'r', 'l', 'd'}
	panicOnInvalidChars = false
	Init("debug", "stderr", nil)
	Debugf("%s", v)
	// should not panic since the flag is disabled

	panicOnInvalidChars = true
	Init("debug", "stderr", nil)
	defer func() { recover() }()
	Debugf("%s", v)
	t.Errorf("Debugf(%s) should have panicked because of invalid char", v)
}

func TestLevel(t *testing.T) {
	Init("warn", "stderr", nil)
	if Level() != LogLevelWarn {
		t.Errorf("Level() = %q, want %q", Level(), LogLevelWarn)
	}
	Init("debug", "stderr", nil)
}

func BenchmarkLogger(b *testing.B) {
	logTestWriter = io.Discard
	Init("debug", logTestWriterName, nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		doLogs()
	}
}
