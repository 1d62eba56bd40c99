package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kanataki-zwei/pipecraft/internal/dialect"
	"github.com/kanataki-zwei/pipecraft/internal/store"
)

func TestOpenUnknownDialect(t *testing.T) {
	r := NewResolver(2 * time.Second)
	conn := &store.Connection{Name: "bad", Dialect: dialect.Type("oracle")}

	_, err := r.Open(context.Background(), conn)
	if err == nil {
		t.Fatal("expected error for unknown dialect")
	}
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Errorf("expected ConfigError, got %T", err)
	}
}

func TestOpenUnreachableHost(t *testing.T) {
	r := NewResolver(2 * time.Second)
	conn := &store.Connection{
		Name:     "unreachable",
		Dialect:  dialect.Postgres,
		Host:     "127.0.0.1",
		Port:     1,
		Database: "appdb",
		Username: "alice",
		Password: "supersecret",
	}

	_, err := r.Open(context.Background(), conn)
	if err == nil {
		t.Fatal("expected connect to fail")
	}
	var ce *ConnectivityError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectivityError, got %T: %v", err, err)
	}
}

func TestTestNeverErrors(t *testing.T) {
	r := NewResolver(2 * time.Second)
	conn := &store.Connection{
		Name:     "unreachable",
		Dialect:  dialect.Postgres,
		Host:     "127.0.0.1",
		Port:     1,
		Database: "appdb",
		Username: "alice",
		Password: "supersecret",
	}

	res := r.Test(context.Background(), conn)
	if res.OK {
		t.Fatal("expected test against unreachable host to fail")
	}
	if res.Message == "" {
		t.Error("failure message is empty")
	}
	if strings.Contains(res.Message, "supersecret") {
		t.Errorf("failure message leaks password: %q", res.Message)
	}
}

func TestTestUnknownDialect(t *testing.T) {
	r := NewResolver(time.Second)
	conn := &store.Connection{Name: "bad", Dialect: dialect.Type("sybase")}

	res := r.Test(context.Background(), conn)
	if res.OK {
		t.Fatal("expected test to fail")
	}
	if !strings.Contains(res.Message, "sybase") {
		t.Errorf("message should name the dialect: %q", res.Message)
	}
}
