package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Reset collectors for testing purposes.
	crawlCardsTotal = nil
	embeddingsTotal = nil
	deadLettersTotal = nil
	httpRequestsTotal = nil

	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if crawlCardsTotal == nil || embeddingsTotal == nil ||
		deadLettersTotal == nil || httpRequestsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	// A simple check to see if a metric can be used.
	ObserveCard("success")
	if val := testutil.ToFloat64(crawlCardsTotal); val != 1 {
		t.Errorf("Expected crawlCardsTotal to be 1, got %f", val)
	}

	ObserveUsage(100, 0.001)
	if val := testutil.ToFloat64(embeddingTokensTotal); val != 100 {
		t.Errorf("Expected embeddingTokensTotal to be 100, got %f", val)
	}
}
