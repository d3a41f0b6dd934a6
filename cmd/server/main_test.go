package main

import (
	"testing"
	"time"

	"filevault/internal/redisx"
)

func TestResolveStorageDriver(t *testing.T) {
	driver, err := resolveStorageDriver("", "", "")
	if err != nil || driver != "json" {
		t.Fatalf("expected json default, got %q err %v", driver, err)
	}

	driver, err = resolveStorageDriver("", "", "postgres://localhost/filevault")
	if err != nil || driver != "postgres" {
		t.Fatalf("expected postgres when DSN is set, got %q err %v", driver, err)
	}

	driver, err = resolveStorageDriver("JSON", "postgres", "postgres://localhost/filevault")
	if err != nil || driver != "json" {
		t.Fatalf("expected flag to win, got %q err %v", driver, err)
	}
}

func TestValidateProductionDatastore(t *testing.T) {
	if err := validateProductionDatastore("json", ""); err == nil {
		t.Fatal("expected error for json driver in production")
	}
	if err := validateProductionDatastore("postgres", ""); err == nil {
		t.Fatal("expected error for missing DSN")
	}
	if err := validateProductionDatastore("postgres", "postgres://localhost/filevault"); err != nil {
		t.Fatalf("expected valid production config, got %v", err)
	}
}

func TestResolveSessionStoreConfig(t *testing.T) {
	cfg, err := resolveSessionStoreConfig("", "", "json", "", "", false)
	if err != nil || cfg.Driver != "memory" {
		t.Fatalf("expected memory default, got %+v err %v", cfg, err)
	}

	cfg, err = resolveSessionStoreConfig("", "", "json", "", "", true)
	if err != nil || cfg.Driver != "redis" {
		t.Fatalf("expected redis when Redis is configured, got %+v err %v", cfg, err)
	}

	cfg, err = resolveSessionStoreConfig("", "", "postgres", "postgres://localhost/filevault", "", false)
	if err != nil || cfg.Driver != "postgres" || cfg.DSN == "" {
		t.Fatalf("expected postgres fallback to storage DSN, got %+v err %v", cfg, err)
	}

	if _, err := resolveSessionStoreConfig("postgres", "", "json", "", "", false); err == nil {
		t.Fatal("expected error for postgres driver without DSN")
	}
	if _, err := resolveSessionStoreConfig("redis", "", "json", "", "", false); err == nil {
		t.Fatal("expected error for redis driver without address")
	}
	if _, err := resolveSessionStoreConfig("etcd", "", "json", "", "", false); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestConfigureJobQueuesMemory(t *testing.T) {
	queues, err := configureJobQueues(jobQueueSettings{})
	if err != nil {
		t.Fatalf("memory queues should not fail: %v", err)
	}
	if queues.Thumbnails == nil || queues.Welcome == nil {
		t.Fatal("expected both queues configured")
	}
}

func TestConfigureJobQueuesRedisRequiresAddr(t *testing.T) {
	if _, err := configureJobQueues(jobQueueSettings{Driver: "redis", Redis: redisx.Config{}}); err == nil {
		t.Fatal("expected error without Redis address")
	}
	if _, err := configureJobQueues(jobQueueSettings{Driver: "kafka"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestResolveListenAddr(t *testing.T) {
	if got := resolveListenAddr("", "development", ""); got != ":5000" {
		t.Fatalf("expected development default :5000, got %q", got)
	}
	if got := resolveListenAddr("", "production", ""); got != ":80" {
		t.Fatalf("expected production default :80, got %q", got)
	}
	if got := resolveListenAddr(":9000", "production", ":7000"); got != ":9000" {
		t.Fatalf("expected flag to win, got %q", got)
	}
	if got := resolveListenAddr("", "development", ":7000"); got != ":7000" {
		t.Fatalf("expected env to win over default, got %q", got)
	}
}

func TestSplitAndTrim(t *testing.T) {
	if got := splitAndTrim(" a, ,b ,"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected result %v", got)
	}
	if got := splitAndTrim("  "); got != nil {
		t.Fatalf("expected nil for blank input, got %v", got)
	}
}

func TestResolveDuration(t *testing.T) {
	if got := resolveDuration(2*time.Second, "FILEVAULT_TEST_UNSET", time.Minute); got != 2*time.Second {
		t.Fatalf("expected flag value, got %v", got)
	}
	if got := resolveDuration(0, "FILEVAULT_TEST_UNSET", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %v", got)
	}
	t.Setenv("FILEVAULT_TEST_DURATION", "90s")
	if got := resolveDuration(0, "FILEVAULT_TEST_DURATION", time.Minute); got != 90*time.Second {
		t.Fatalf("expected env value, got %v", got)
	}
}
