package routing

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/vietddude/llmrelay/internal/infra/llm"
)

func chainOpts() FallbackOptions {
	return FallbackOptions{
		BaseURL:       "http://127.0.0.1:11434",
		ProxyURL:      "",
		PublicProxies: []string{"https://corsproxy.io/?"},
	}
}

func TestNewChain_Order(t *testing.T) {
	tests := []struct {
		name string
		opts FallbackOptions
		want []string
	}{
		{
			"direct only in production",
			FallbackOptions{BaseURL: "http://x", Production: true, PublicProxies: []string{"https://p/?"}},
			[]string{"direct"},
		},
		{
			"direct then custom",
			FallbackOptions{BaseURL: "http://x", ProxyURL: "http://proxy", PublicProxies: []string{"https://p/?"}},
			[]string{"direct", "custom"},
		},
		{
			"direct then public when no custom",
			FallbackOptions{BaseURL: "http://x", PublicProxies: []string{"https://p1/?", "https://p2/?"}},
			[]string{"direct", "public:p1", "public:p2"},
		},
		{
			"forced proxy drops direct",
			FallbackOptions{BaseURL: "http://x", ForceProxy: true, ProxyURL: "http://proxy"},
			[]string{"custom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, err := NewChain(tt.opts)
			if err != nil {
				t.Fatalf("NewChain failed: %v", err)
			}
			got := make([]string, 0, len(chain.Strategies()))
			for _, s := range chain.Strategies() {
				got = append(got, s.Name)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("strategies = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("strategy[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNewChain_ForceProxyWithoutProxyFails(t *testing.T) {
	_, err := NewChain(FallbackOptions{BaseURL: "http://x", ForceProxy: true})
	if !errors.Is(err, ErrNoStrategies) {
		t.Errorf("err = %v, want ErrNoStrategies", err)
	}
}

func TestStrategy_URLs(t *testing.T) {
	opts := FallbackOptions{
		BaseURL:       "http://127.0.0.1:11434",
		ProxyURL:      "http://relay.internal:8081",
		PublicProxies: nil,
	}
	chain, err := NewChain(opts)
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}

	direct := chain.Strategies()[0]
	if got := direct.URL(llm.PathGenerate); got != "http://127.0.0.1:11434/api/generate" {
		t.Errorf("direct URL = %q", got)
	}

	custom := chain.Strategies()[1]
	if got := custom.URL(llm.PathGenerate); got != "http://relay.internal:8081/api/generate" {
		t.Errorf("custom URL = %q", got)
	}
}

func TestPublicStrategy_WrapsFullURL(t *testing.T) {
	chain, err := NewChain(chainOpts())
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}

	public := chain.Strategies()[1]
	got := public.URL(llm.PathTags)
	want := "https://corsproxy.io/?" + url.QueryEscape("http://127.0.0.1:11434/api/tags")
	if got != want {
		t.Errorf("public URL = %q, want %q", got, want)
	}
}

func TestFailover_StopsAtFirstSuccess(t *testing.T) {
	opts := FallbackOptions{
		BaseURL:       "http://x",
		ProxyURL:      "http://proxy",
		PublicProxies: []string{"https://p/?"},
	}
	chain, err := NewChain(opts)
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}

	var tried []string
	got, err := Failover(context.Background(), chain, func(ctx context.Context, s Strategy) (string, error) {
		tried = append(tried, s.Name)
		if s.Name == "custom" {
			return "via-custom", nil
		}
		return "", errors.New("blocked by CORS policy")
	})
	if err != nil {
		t.Fatalf("Failover failed: %v", err)
	}
	if got != "via-custom" {
		t.Errorf("result = %q", got)
	}
	if len(tried) != 2 || tried[0] != "direct" || tried[1] != "custom" {
		t.Errorf("tried = %v, want [direct custom]", tried)
	}
}

func TestFailover_AggregatesAllFailures(t *testing.T) {
	chain, err := NewChain(FallbackOptions{
		BaseURL:       "http://x",
		PublicProxies: []string{"https://p1/?", "https://p2/?"},
	})
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}

	_, err = Failover(context.Background(), chain, func(ctx context.Context, s Strategy) (string, error) {
		return "", errors.New(s.Name + " says no")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("expected *ChainError, got %T", err)
	}
	if len(chainErr.Failures) != 3 {
		t.Fatalf("failures = %d, want 3", len(chainErr.Failures))
	}
	msg := err.Error()
	for _, frag := range []string{"direct says no", "public:p1 says no", "public:p2 says no"} {
		if !strings.Contains(msg, frag) {
			t.Errorf("aggregate error missing %q: %s", frag, msg)
		}
	}
}
