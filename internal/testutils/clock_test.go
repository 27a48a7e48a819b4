package testutils

import (
	"testing"
	"time"
)

func TestManualClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)

	if !clock.Now().Equal(start) {
		t.Errorf("Expected %v, got %v", start, clock.Now())
	}

	clock.Advance(31 * time.Second)
	if got := clock.Now().Sub(start); got != 31*time.Second {
		t.Errorf("Expected 31s elapsed, got %v", got)
	}

	later := start.Add(time.Hour)
	clock.Set(later)
	if !clock.Now().Equal(later) {
		t.Errorf("Expected %v, got %v", later, clock.Now())
	}
}

func TestSuiteTempFile(t *testing.T) {
	suite := NewTestSuite(t, nil)
	defer suite.TearDown()

	path := suite.CreateTempFile("a.txt", "hello")
	if path == "" {
		t.Fatal("Expected a path")
	}
	suite.Logger.Info("created", "path", path)
}
