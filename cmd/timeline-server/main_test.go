package main

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/radarhealth/timeline/internal/config"
)

func TestNewAnalyzer_DisabledWithoutKey(t *testing.T) {
	cfg := &config.Config{LLMPrimaryModel: "gemini-2.0-flash-exp"}
	if a := newAnalyzer(cfg, zerolog.Nop()); a != nil {
		t.Error("expected nil analyzer when no API key is configured")
	}
}

func TestNewAnalyzer_EnabledWithKey(t *testing.T) {
	cfg := &config.Config{
		LLMAPIKey:         "test-key",
		LLMPrimaryModel:   "gemini-2.0-flash-exp",
		LLMFallbackModel:  "gemini-1.5-flash",
		LLMTimeoutSeconds: 30,
		AnalysisMaxEvents: 50,
	}
	if a := newAnalyzer(cfg, zerolog.Nop()); a == nil {
		t.Error("expected analyzer when API key is configured")
	}
}
