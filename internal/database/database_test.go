package database

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestMigrationVersion(t *testing.T) {
	tests := []struct {
		name     string
		expected int
	}{
		{"001_initial_schema.sql", 1},
		{"012_add_views.sql", 12},
		{"readme.sql", 0},
		{"01_short.sql", 0},
		{"abc_schema.sql", 0},
	}

	for _, tc := range tests {
		if got := migrationVersion(tc.name); got != tc.expected {
			t.Errorf("migrationVersion(%q) = %d, want %d", tc.name, got, tc.expected)
		}
	}
}

func TestNewRedisClients(t *testing.T) {
	mr := miniredis.RunT(t)

	clients, err := NewRedisClients("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisClients() error: %v", err)
	}
	defer clients.Close()

	if clients.Queue == clients.PubSub {
		t.Error("Expected separate queue and pub/sub clients")
	}
}

func TestNewRedisClients_BadURL(t *testing.T) {
	if _, err := NewRedisClients("not-a-url"); err == nil {
		t.Error("Expected error for malformed URL")
	}
}

func TestRedisClients_Ping(t *testing.T) {
	mr := miniredis.RunT(t)

	clients, err := NewRedisClients("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisClients() error: %v", err)
	}
	defer clients.Close()

	if err := clients.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error: %v", err)
	}

	mr.Close()
	err = clients.Ping(context.Background())
	if err == nil {
		t.Fatal("Expected Ping() to fail once redis is gone")
	}
	if !strings.Contains(err.Error(), "redis queue") || !strings.Contains(err.Error(), "redis pubsub") {
		t.Errorf("Expected both roles in error, got %v", err)
	}
}
