//go:build integration

package influxdb

import (
	"context"
	"sync"
	"testing"
	"time"
)

// Integration tests against a live InfluxDB at 127.0.0.1:8086.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/influxdb/...

func connectTest(t *testing.T) (*Client, func() error) {
	t.Helper()
	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	var mu sync.Mutex
	var writeErr error
	client.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})
	return client, func() error {
		mu.Lock()
		defer mu.Unlock()
		return writeErr
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	if _, err := Connect(cfg); err == nil {
		t.Fatal("Connect() should fail against a closed port")
	}
}

func TestIntegration_HealthCheck(t *testing.T) {
	client, _ := connectTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	if err := client.HealthCheck(cancelled); err == nil {
		t.Error("HealthCheck() with cancelled context should fail")
	}
}

func TestIntegration_WriteAuthEvents(t *testing.T) {
	client, writeErr := connectTest(t)

	client.WriteAuthEvent(AuthEvent{Kind: "login", Outcome: "success"})
	client.WriteAuthEvent(AuthEvent{Kind: "login", Outcome: "failure", Reason: "invalid email or password"})
	client.WriteRateLimited("/auth/login")
	client.Flush()

	time.Sleep(100 * time.Millisecond)
	if err := writeErr(); err != nil {
		t.Errorf("write error = %v", err)
	}
}

func TestIntegration_Close(t *testing.T) {
	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	client.WriteAuthEvent(AuthEvent{Kind: "refresh", Outcome: "success"})
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}
