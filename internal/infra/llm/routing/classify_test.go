package routing

import (
	"context"
	"errors"
	"strings"
	"syscall"
	"testing"

	"github.com/vietddude/llmrelay/internal/core/domain"
	"github.com/vietddude/llmrelay/internal/infra/llm"
)

func TestClassify_Categories(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		expect domain.ErrorCategory
	}{
		{"cancellation", context.Canceled, domain.CategoryTimeout},
		{"deadline", context.DeadlineExceeded, domain.CategoryTimeout},
		{"http 404", &llm.HTTPError{Status: 404}, domain.CategoryModel},
		{"http 401", &llm.HTTPError{Status: 401}, domain.CategoryAuth},
		{"http 403", &llm.HTTPError{Status: 403}, domain.CategoryAuth},
		{"http 500", &llm.HTTPError{Status: 500}, domain.CategoryServer},
		{"http 502", &llm.HTTPError{Status: 502}, domain.CategoryServer},
		{"http 503", &llm.HTTPError{Status: 503}, domain.CategoryServer},
		{"http 504", &llm.HTTPError{Status: 504}, domain.CategoryTimeout},
		{"cors phrasing", errors.New("blocked by CORS policy"), domain.CategoryCors},
		{"cross-origin phrasing", errors.New("cross-origin request blocked"), domain.CategoryCors},
		{"refused", errors.New("dial tcp 127.0.0.1:11434: connection refused"), domain.CategoryConnection},
		{"refused errno", syscall.ECONNREFUSED, domain.CategoryConnection},
		{"fetch failure", errors.New("failed to fetch"), domain.CategoryNetwork},
		{"reset", errors.New("read tcp: connection reset by peer"), domain.CategoryNetwork},
		{"dns", errors.New("lookup example.com: no such host"), domain.CategoryNetwork},
		{"default", errors.New("something odd happened"), domain.CategoryConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, "http://127.0.0.1:11434")
			if got.Category != tt.expect {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got.Category, tt.expect)
			}
			if got.Message == "" {
				t.Error("classified error must carry a user message")
			}
		})
	}
}

func TestClassify_PreservesExistingClassification(t *testing.T) {
	orig := &domain.ClassifiedError{Category: domain.CategoryModel, Message: "m"}
	got := Classify(orig, "http://127.0.0.1:11434")
	if got != orig {
		t.Error("already-classified errors must pass through unchanged")
	}
}

func TestClassify_LocalVsRemoteMessageOnly(t *testing.T) {
	err := errors.New("dial tcp: connection refused")

	local := Classify(err, "http://127.0.0.1:11434")
	remote := Classify(err, "http://inference.example.com:11434")

	if local.Category != remote.Category {
		t.Errorf("target must not affect category: %v vs %v", local.Category, remote.Category)
	}
	if local.Message == remote.Message {
		t.Error("local and remote targets should produce different message variants")
	}
	if !strings.Contains(strings.ToLower(local.Message), "local") {
		t.Errorf("local message should mention the local service: %q", local.Message)
	}
}

func TestClassify_CorsCarriesRemediation(t *testing.T) {
	got := Classify(errors.New("request blocked by CORS policy"), "http://localhost:11434")
	if !strings.Contains(got.Message, "OLLAMA_ORIGINS") && !strings.Contains(got.Message, "proxy") {
		t.Errorf("cors message should include remediation guidance: %q", got.Message)
	}
}

func TestIsLocalTarget(t *testing.T) {
	tests := []struct {
		target string
		local  bool
	}{
		{"http://127.0.0.1:11434", true},
		{"http://localhost:11434", true},
		{"http://[::1]:11434", true},
		{"http://192.168.1.10:11434", true},
		{"http://10.0.0.5:11434", true},
		{"http://inference.example.com", false},
		{"http://8.8.8.8:11434", false},
	}
	for _, tt := range tests {
		if got := isLocalTarget(tt.target); got != tt.local {
			t.Errorf("isLocalTarget(%q) = %v, want %v", tt.target, got, tt.local)
		}
	}
}
