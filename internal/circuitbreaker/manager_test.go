package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestManagerReusesBreakers(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	m := NewManager(logger, nil)

	a := m.GetOrCreate("kafka", Config{MaxFailures: 1, OpenTimeout: time.Minute})
	if a != m.GetOrCreate("kafka", Config{MaxFailures: 9}) {
		t.Fatal("expected the same breaker for the same name")
	}
	m.GetOrCreate("audit", Config{})

	stats := m.Stats()
	if len(stats) != 2 || stats[0].Name != "audit" || stats[1].Name != "kafka" {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if !m.Healthy() {
		t.Error("fresh breakers should be healthy")
	}

	_ = a.Execute(context.Background(), fail)
	if m.Healthy() {
		t.Error("an open breaker should make the manager unhealthy")
	}
}

func TestManagerInstallsDefaultCallback(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	seen := make(chan string, 1)
	m := NewManager(logger, func(name string, from, to State) { seen <- name })
	cb := m.GetOrCreate("kafka", Config{MaxFailures: 1, OpenTimeout: time.Minute})
	_ = cb.Execute(context.Background(), fail)

	select {
	case name := <-seen:
		if name != "kafka" {
			t.Errorf("unexpected breaker name %q", name)
		}
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}
}
