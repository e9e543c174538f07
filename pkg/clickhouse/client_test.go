package clickhouse

import (
	"strings"
	"testing"
	"time"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(ClientConfig{
		Host:        "ch",
		Port:        9000,
		Database:    "secmaster",
		User:        "default",
		Password:    "p@ss",
		DialTimeout: 5 * time.Second,
		MaxExecTime: time.Minute,
		SyncDeletes: true,
	})

	if !strings.HasPrefix(dsn, "clickhouse://default:p%40ss@ch:9000/secmaster?") {
		t.Fatalf("unexpected dsn prefix: %s", dsn)
	}
	for _, want := range []string{"dial_timeout=5s", "max_execution_time=60", "lightweight_deletes_sync=2"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
}

func TestBuildDSNHTTP(t *testing.T) {
	dsn := buildDSN(ClientConfig{Host: "ch", Port: 8123, Database: "db", User: "u", UseHTTP: true})
	if !strings.HasPrefix(dsn, "http://u:@ch:8123/db") {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
	if strings.Contains(dsn, "mutations_sync") {
		t.Errorf("sync deletes should be off: %s", dsn)
	}
}
