package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// nil installs a no-op logger
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLevelPrefixes(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	Infof("hello %d", 1)
	Warnf("careful")
	Errorf("broken: %s", "device")

	want := []string{"[info] hello 1", "[warn] careful", "[error] broken: device"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %v", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestDebugf_Gated(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()
	defer SetDebug(false)

	count := 0
	SetLogger(func(string, ...interface{}) { count++ })

	SetDebug(false)
	Debugf("hidden")
	if count != 0 {
		t.Errorf("Debugf logged with debug disabled")
	}

	SetDebug(true)
	if !DebugEnabled() {
		t.Fatal("DebugEnabled() = false after SetDebug(true)")
	}
	Debugf("shown")
	if count != 1 {
		t.Errorf("Debugf count = %d, want 1", count)
	}
}
