package openai

import (
	"context"
	"errors"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/prodreg/reestr/internal/domain"
)

func TestParseAPIError_DeadlineIsTimeout(t *testing.T) {
	err := parseAPIError(context.DeadlineExceeded)
	if !errors.Is(err, domain.ErrEmbeddingTimeout) {
		t.Fatalf("expected ErrEmbeddingTimeout, got %v", err)
	}
}

func TestParseAPIError_RequestErrorIsUnavailable(t *testing.T) {
	reqErr := &openai.RequestError{
		HTTPStatusCode: 503,
		Body:           []byte(`{"detail": "model overloaded"}`),
	}

	err := parseAPIError(reqErr)
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if want := "model overloaded"; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q must contain %q", err.Error(), want)
	}
}

func TestParseAPIError_APIErrorIsUnavailable(t *testing.T) {
	apiErr := &openai.APIError{HTTPStatusCode: 429, Message: "rate limited"}

	err := parseAPIError(apiErr)
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestExtractDetail(t *testing.T) {
	if got := extractDetail([]byte(`{"detail": "boom"}`)); got != "boom" {
		t.Errorf("detail = %q", got)
	}
	if got := extractDetail([]byte(`not json`)); got != "" {
		t.Errorf("detail = %q, want empty", got)
	}
}
