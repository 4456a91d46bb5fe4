package main

import (
	"testing"
	"time"

	"praetor-hq/tribune/pkg/config"
)

func TestRetentionConfig(t *testing.T) {
	got := retentionConfig(&config.RetentionConfig{
		MaxAge:     72 * time.Hour,
		MaxRecords: 250000,
		Schedule:   "0 3 * * *",
	})
	if got.MaxAge != 72*time.Hour {
		t.Errorf("MaxAge = %v", got.MaxAge)
	}
	if got.MaxRecords != 250000 {
		t.Errorf("MaxRecords = %d", got.MaxRecords)
	}
	if got.Schedule != "0 3 * * *" {
		t.Errorf("Schedule = %q", got.Schedule)
	}
}
