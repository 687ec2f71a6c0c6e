package engine

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/Chunkys0up7/atomindex/internal/config"
)

func TestQueryRejectsNegativeTopK(t *testing.T) {
	e := &Engine{cfg: &config.Config{}, logger: zap.NewNop()}

	_, err := e.Query(context.Background(), QueryRequest{Query: "q", TopK: -1})
	if err == nil {
		t.Fatal("Query accepted a negative top_k")
	}
}

func TestQueryRejectsUnknownMode(t *testing.T) {
	e := &Engine{cfg: &config.Config{}, logger: zap.NewNop()}

	_, err := e.Query(context.Background(), QueryRequest{Query: "q", Mode: "graph"})
	if err == nil {
		t.Fatal("Query accepted an unknown mode")
	}
}
