package logging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestNewParsesLevelAndFormat(t *testing.T) {
	logger, closer, err := New(Options{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer closer.Close()
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected json formatter, got %T", logger.Formatter)
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	if _, _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bridge.log")
	logger, closer, err := New(Options{File: path})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Info("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected log output in file")
	}
}

func TestFromContext(t *testing.T) {
	fallback, _ := test.NewNullLogger()
	scoped, hook := test.NewNullLogger()

	if got := FromContext(context.Background(), fallback); got != fallback {
		t.Fatalf("expected fallback logger")
	}
	ctx := WithLogger(context.Background(), scoped.WithField("trace_id", "abc"))
	FromContext(ctx, fallback).Info("scoped")
	if len(hook.Entries) != 1 || hook.LastEntry().Data["trace_id"] != "abc" {
		t.Fatalf("expected scoped entry with trace id, got %+v", hook.AllEntries())
	}
}
