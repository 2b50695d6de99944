package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestSetupJSONFormatProducesNonNilLogger(t *testing.T) {
	Setup(false, "json")
	if Log == nil {
		t.Fatal("expected non-nil logger after Setup")
	}
	Setup(false, "text")
}

func TestSetupHonorsLogLevelEnvVar(t *testing.T) {
	t.Setenv("RV_LOG_LEVEL", "debug")
	Setup(false, "text")
	if !Log.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug level enabled via RV_LOG_LEVEL")
	}
}
