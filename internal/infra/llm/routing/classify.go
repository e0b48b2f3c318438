// Package routing implements failure classification, retry with backoff,
// and the ordered connection-strategy fallback chain.
package routing

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"github.com/vietddude/llmrelay/internal/core/domain"
	"github.com/vietddude/llmrelay/internal/infra/llm"
)

// Classify maps a raw failure onto the error taxonomy. target is the
// configured service address; it selects the local or remote wording of
// the user message, never the category.
func Classify(err error, target string) *domain.ClassifiedError {
	if err == nil {
		return nil
	}

	// Already classified further down the stack.
	var ce *domain.ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	local := isLocalTarget(target)
	category := classifyCategory(err)

	return &domain.ClassifiedError{
		Category: category,
		Message:  userMessage(category, local),
		Cause:    err,
	}
}

func classifyCategory(err error) domain.ErrorCategory {
	// Explicit cancellation or deadline expiry.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.CategoryTimeout
	}

	// HTTP status from the service.
	var httpErr *llm.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.Status {
		case http.StatusNotFound:
			return domain.CategoryModel
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.CategoryAuth
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
			return domain.CategoryServer
		case http.StatusGatewayTimeout:
			return domain.CategoryTimeout
		}
	}

	s := strings.ToLower(err.Error())

	// Cross-origin policy rejections, typically from an intermediary.
	if strings.Contains(s, "cors") || strings.Contains(s, "cross-origin") ||
		strings.Contains(s, "access-control-allow-origin") {
		return domain.CategoryCors
	}

	// Refused connections are a distinct, commonly-seen failure: the host
	// answered but nothing listens on the port.
	if errors.Is(err, syscall.ECONNREFUSED) || strings.Contains(s, "connection refused") {
		return domain.CategoryConnection
	}

	// Generic transport failures.
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		strings.Contains(s, "failed to fetch") || strings.Contains(s, "network") ||
		strings.Contains(s, "connection reset") || strings.Contains(s, "broken pipe") {
		return domain.CategoryNetwork
	}

	// DNS resolution failures.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) || strings.Contains(s, "no such host") ||
		strings.Contains(s, "dns") {
		return domain.CategoryNetwork
	}

	return domain.CategoryConnection
}

// isLocalTarget reports whether the configured address points at the same
// machine or a private network. Loopback and private-range hosts get the
// "local service" message variants.
func isLocalTarget(target string) bool {
	host := target
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		host = u.Host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))

	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate()
	}
	return false
}

func userMessage(category domain.ErrorCategory, local bool) string {
	switch category {
	case domain.CategoryTimeout:
		if local {
			return "The local model is taking too long to respond. It may still be loading into memory."
		}
		return "The inference server is taking too long to respond. Please try again."
	case domain.CategoryModel:
		if local {
			return "The requested model is not installed locally. Pull it and try again."
		}
		return "The requested model is not available on the inference server."
	case domain.CategoryAuth:
		if local {
			return "The local inference service rejected the request as unauthorized."
		}
		return "The inference server rejected the credentials for this request."
	case domain.CategoryServer:
		if local {
			return "The local inference service hit an internal error. It may be overloaded or restarting."
		}
		return "The inference server hit an internal error. It may be overloaded or cold-starting."
	case domain.CategoryCors:
		if local {
			return "The local service blocked the request by cross-origin policy. " +
				"Set OLLAMA_ORIGINS to allow this origin, or configure a proxy intermediary."
		}
		return "The inference server blocked the request by cross-origin policy. " +
			"Configure a proxy intermediary (fallback.proxy_url) to route around it."
	case domain.CategoryNetwork:
		if local {
			return "A network error occurred reaching the local inference service."
		}
		return "A network error occurred reaching the inference server. Check your connection."
	case domain.CategoryConnection:
		if local {
			return "Could not connect to the local inference service. Is it running?"
		}
		return "Could not connect to the inference server. It may be down or unreachable."
	default:
		if local {
			return "An unexpected error occurred talking to the local inference service."
		}
		return "An unexpected error occurred talking to the inference server."
	}
}
