package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	s := Default()
	if s.Workers != 3 || s.MaxAttempts != 3 || s.DefaultFormat != "best" {
		t.Errorf("unexpected defaults %+v", s)
	}
	if s.PollInterval != 500*time.Millisecond || s.NotifyInterval != time.Second || s.RetryBackoff != 2*time.Second {
		t.Errorf("unexpected intervals %+v", s)
	}
	if s.Store.Backend != "local" || s.History.Backend != "file" || s.History.Path == "" {
		t.Errorf("unexpected backends %+v", s)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Workers != DefaultWorkers {
		t.Errorf("expected default workers, got %d", s.Workers)
	}
}

func TestLoadOverridesAndClamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `workers: 42
download_dir: /media/out
poll_interval: 250ms
notify_interval: 2s
max_attempts: 0
store:
  backend: s3
  bucket: my-bucket
  prefix: vids
history:
  backend: redis
  redis_addr: localhost:6379
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Workers != MaxWorkers {
		t.Errorf("expected workers clamped to %d, got %d", MaxWorkers, s.Workers)
	}
	if s.DownloadDir != "/media/out" {
		t.Errorf("unexpected download dir %q", s.DownloadDir)
	}
	if s.PollInterval != 250*time.Millisecond || s.NotifyInterval != 2*time.Second {
		t.Errorf("unexpected intervals %v %v", s.PollInterval, s.NotifyInterval)
	}
	if s.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("expected max attempts defaulted, got %d", s.MaxAttempts)
	}
	if s.Store.Bucket != "my-bucket" || s.History.RedisAddr != "localhost:6379" {
		t.Errorf("nested sections not loaded: %+v", s)
	}
	if s.RetryBackoff != 2*time.Second {
		t.Errorf("expected default backoff kept, got %v", s.RetryBackoff)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "workers: [1"},
		{"s3 without bucket", "store:\n  backend: s3\n"},
		{"unknown store", "store:\n  backend: ftp\n"},
		{"redis without addr", "history:\n  backend: redis\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			os.WriteFile(path, []byte(tt.content), 0644)
			if _, err := Load(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestClampWorkers(t *testing.T) {
	tests := []struct {
		in, expected int
	}{
		{-1, 1}, {0, 1}, {1, 1}, {3, 3}, {10, 10}, {11, 10},
	}
	for _, test := range tests {
		if got := ClampWorkers(test.in); got != test.expected {
			t.Errorf("ClampWorkers(%d) = %d, expected %d", test.in, got, test.expected)
		}
	}
}

func TestProviderSnapshotsAreIsolated(t *testing.T) {
	p := NewProvider(Default())
	before := p.Snapshot()
	after := p.Update(func(s *Settings) {
		s.Workers = 0
		s.DownloadDir = "/elsewhere"
	})
	if after.Workers != MinWorkers {
		t.Errorf("expected update to be normalized, got %d", after.Workers)
	}
	if before.DownloadDir != "" || before.Workers != DefaultWorkers {
		t.Errorf("earlier snapshot changed: %+v", before)
	}
	if p.Snapshot().DownloadDir != "/elsewhere" {
		t.Errorf("expected new snapshot, got %+v", p.Snapshot())
	}
}
