package tracing

import (
	"context"
	"testing"

	"github.com/router-for-me/GroupBuyBusiness/internal/config"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{ServiceName: "groupbuy-test"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if errShutdown := shutdown(context.Background()); errShutdown != nil {
		t.Fatalf("shutdown: %v", errShutdown)
	}
}

func TestSetup_WithEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{
		Endpoint:    "http://127.0.0.1:4318",
		ServiceName: "groupbuy-test",
		SampleRatio: 1,
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	// Nothing was recorded, so shutdown has nothing to flush.
	if errShutdown := shutdown(context.Background()); errShutdown != nil {
		t.Fatalf("shutdown: %v", errShutdown)
	}
}
