package browser

import (
	"context"
	"strings"
	"testing"
)

func TestManagerClosedGuards(t *testing.T) {
	m := NewManager(Config{})
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := m.Start(context.Background()); err == nil {
		t.Fatal("Start on closed manager: want error")
	} else if !strings.Contains(err.Error(), "closed") {
		t.Fatalf("Start error = %v", err)
	}

	// Reset takes no context: the recycle path must run to completion even
	// when the triggering request is long gone.
	if err := m.Reset(); err == nil {
		t.Fatal("Reset on closed manager: want error")
	} else if !strings.Contains(err.Error(), "closed") {
		t.Fatalf("Reset error = %v", err)
	}
}

func TestManagerCloseIdempotent(t *testing.T) {
	m := NewManager(Config{})
	if err := m.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.defaults()
	if c.MemoryLimit != 1<<30 {
		t.Errorf("MemoryLimit = %d", c.MemoryLimit)
	}
	if c.RecycleInterval <= 0 {
		t.Error("RecycleInterval not defaulted")
	}
	if c.Logger == nil {
		t.Error("Logger not defaulted")
	}
}
