package logger

import (
	"bytes"
	"strings"
	"testing"
)

type bufferCloser struct {
	bytes.Buffer
}

func (b *bufferCloser) Close() error { return nil }

func TestParseAndSetLogLevels(t *testing.T) {
	first := RegisterSubSystem("TST1")
	second := RegisterSubSystem("TST2")

	tests := []struct {
		debugLevel    string
		expectedFirst Level
		expectedSecnd Level
		expectError   bool
	}{
		{debugLevel: "info", expectedFirst: LevelInfo, expectedSecnd: LevelInfo},
		{debugLevel: "warn,TST1=trace", expectedFirst: LevelTrace, expectedSecnd: LevelWarn},
		{debugLevel: "TST2=debug", expectedFirst: LevelTrace, expectedSecnd: LevelDebug},
		{debugLevel: "loud", expectError: true},
		{debugLevel: "NOPE=debug", expectError: true},
		{debugLevel: "TST1=debug=trace", expectError: true},
	}

	for _, test := range tests {
		err := ParseAndSetLogLevels(test.debugLevel)
		if test.expectError {
			if err == nil {
				t.Fatalf("ParseAndSetLogLevels(%q): expected an error", test.debugLevel)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseAndSetLogLevels(%q): %+v", test.debugLevel, err)
		}
		if first.Level() != test.expectedFirst || second.Level() != test.expectedSecnd {
			t.Fatalf("ParseAndSetLogLevels(%q): got levels %s/%s, want %s/%s", test.debugLevel,
				first.Level(), second.Level(), test.expectedFirst, test.expectedSecnd)
		}
	}
}

func TestBackendFiltersByWriterLevel(t *testing.T) {
	backend := NewBackendWithFlags(0)
	all := &bufferCloser{}
	errorsOnly := &bufferCloser{}
	if err := backend.AddLogWriter(all, LevelTrace); err != nil {
		t.Fatalf("AddLogWriter: %+v", err)
	}
	if err := backend.AddLogWriter(errorsOnly, LevelError); err != nil {
		t.Fatalf("AddLogWriter: %+v", err)
	}
	if err := backend.Run(); err != nil {
		t.Fatalf("Run: %+v", err)
	}

	log := backend.Logger("TEST")
	log.SetLevel(LevelDebug)
	log.Tracef("muted")
	log.Infof("hello %d", 1)
	log.Errorf("broken %s", "thing")
	backend.Close()

	if strings.Contains(all.String(), "muted") {
		t.Fatalf("trace message should be filtered by the logger level")
	}
	if !strings.Contains(all.String(), "[INF] TEST: hello 1") {
		t.Fatalf("missing info line in %q", all.String())
	}
	if strings.Contains(errorsOnly.String(), "hello") || !strings.Contains(errorsOnly.String(), "[ERR] TEST: broken thing") {
		t.Fatalf("unexpected error writer output %q", errorsOnly.String())
	}

	// Writes after Close are dropped.
	log.Errorf("late")
	if strings.Contains(all.String(), "late") {
		t.Fatalf("write after Close reached a writer")
	}
}
