package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacentio/mailtree/creation"
	"github.com/jacentio/mailtree/internal/metrics"
	"github.com/jacentio/mailtree/store"
)

func envMap(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestLoadSettings_Defaults(t *testing.T) {
	s, err := loadSettings(envMap(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.handler != handlerAPI {
		t.Errorf("expected handler %q, got %q", handlerAPI, s.handler)
	}
	if s.driver != driverDynamoDB {
		t.Errorf("expected driver %q, got %q", driverDynamoDB, s.driver)
	}
	if s.store != store.DefaultConfig() {
		t.Errorf("expected default store config, got %+v", s.store)
	}
	if s.delimiter != '/' {
		t.Errorf("expected '/', got %q", s.delimiter)
	}
	if s.logLevel != slog.LevelInfo {
		t.Errorf("expected info level, got %v", s.logLevel)
	}
	if s.pushgateway != "" {
		t.Errorf("expected no pushgateway, got %q", s.pushgateway)
	}
}

func TestLoadSettings_Overrides(t *testing.T) {
	s, err := loadSettings(envMap(map[string]string{
		"MAILTREE_HANDLER":            "cascade",
		"MAILTREE_STORE":              "dynamodb",
		"MAILTREE_MAILBOX_TABLE":      "mb",
		"MAILTREE_PATH_TABLE":         "paths",
		"MAILTREE_RELATIONSHIP_TABLE": "rels",
		"MAILTREE_SUBSCRIPTION_TABLE": "subs",
		"MAILTREE_NUM_SHARDS":         "8",
		"MAILTREE_MAX_NAME_LENGTH":    "64",
		"MAILTREE_DELIMITER":          ".",
		"MAILTREE_LOG_LEVEL":          "debug",
		"MAILTREE_PUSHGATEWAY_URL":    "http://pushgateway:9091",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := store.Config{
		MailboxTable:      "mb",
		PathTable:         "paths",
		RelationshipTable: "rels",
		SubscriptionTable: "subs",
		NumShards:         8,
		MaxNameLength:     64,
	}
	if s.store != want {
		t.Errorf("expected %+v, got %+v", want, s.store)
	}
	if s.handler != handlerCascade {
		t.Errorf("expected cascade handler, got %q", s.handler)
	}
	if s.delimiter != '.' {
		t.Errorf("expected '.', got %q", s.delimiter)
	}
	if s.logLevel != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", s.logLevel)
	}
	if s.pushgateway != "http://pushgateway:9091" {
		t.Errorf("expected pushgateway URL, got %q", s.pushgateway)
	}
}

func TestLoadSettings_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown handler", env: map[string]string{"MAILTREE_HANDLER": "cron"}},
		{name: "unknown driver", env: map[string]string{"MAILTREE_STORE": "postgres"}},
		{name: "cascade on memory", env: map[string]string{"MAILTREE_HANDLER": "cascade", "MAILTREE_STORE": "memory"}},
		{name: "shards not a number", env: map[string]string{"MAILTREE_NUM_SHARDS": "many"}},
		{name: "zero name length", env: map[string]string{"MAILTREE_MAX_NAME_LENGTH": "0"}},
		{name: "long delimiter", env: map[string]string{"MAILTREE_DELIMITER": "::"}},
		{name: "bad log level", env: map[string]string{"MAILTREE_LOG_LEVEL": "chatty"}},
		{name: "relative pushgateway", env: map[string]string{"MAILTREE_PUSHGATEWAY_URL": "pushgateway:9091"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadSettings(envMap(tt.env)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadSettings_CascadeNeedsDynamoDB(t *testing.T) {
	_, err := loadSettings(envMap(map[string]string{"MAILTREE_HANDLER": "cascade", "MAILTREE_STORE": "memory"}))
	if !errors.Is(err, errCascadeNeedsDynamoDB) {
		t.Errorf("expected errCascadeNeedsDynamoDB, got %v", err)
	}
}

func TestOpenBackend_Memory(t *testing.T) {
	s, err := loadSettings(envMap(map[string]string{"MAILTREE_STORE": "memory"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mailboxes, streamStore, err := openBackend(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if streamStore != nil {
		t.Error("expected no stream store for the memory driver")
	}

	id, err := mailboxes.CreateMailbox(context.Background(), store.NewSession("alice").Root("Inbox"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mailboxes.GetMailbox(context.Background(), id); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPushAfter(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		handlerErr error
		wantWarn   bool
	}{
		{name: "pushed", status: http.StatusOK},
		{name: "handler error still pushes", status: http.StatusOK, handlerErr: errors.New("boom")},
		{name: "gateway down", status: http.StatusBadGateway, wantWarn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pushes atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				pushes.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			reg := prometheus.NewRegistry()
			sink, err := metrics.NewSink(reg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var logs bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&logs, nil))

			next := func(ctx context.Context, req string) (string, error) {
				sink.StartTimer(creation.TimerName).ObserveDuration()
				return "ok:" + req, tt.handlerErr
			}
			h := pushAfter(next, metrics.NewPusher(srv.URL, "test", reg), logger)

			resp, err := h(context.Background(), "x")
			if resp != "ok:x" {
				t.Errorf("expected ok:x, got %q", resp)
			}
			if !errors.Is(err, tt.handlerErr) {
				t.Errorf("expected handler error %v, got %v", tt.handlerErr, err)
			}
			if n := pushes.Load(); n != 1 {
				t.Errorf("expected 1 push, got %d", n)
			}
			if got := strings.Contains(logs.String(), `"level":"WARN"`); got != tt.wantWarn {
				t.Errorf("expected warning %v, got logs %s", tt.wantWarn, logs.String())
			}
		})
	}
}
