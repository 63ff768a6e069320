// internal/llm/extractor.go
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/Ian-Chin/iunami-ai-extension/internal/core"
)

// Completer is the part of Client the Extractor needs.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Extractor turns free text into values for a database schema.
type Extractor struct {
	completer Completer
}

func NewExtractor(completer Completer) *Extractor {
	return &Extractor{completer: completer}
}

// Extract builds the prompt, calls the model and reconciles its reply
// against the schema. Keys the schema does not know are dropped.
func (e *Extractor) Extract(ctx context.Context, schemas []core.FieldSchema, text string, now time.Time) (core.ValueMap, error) {
	prompt := core.BuildPrompt(schemas, now)

	content, err := e.completer.Complete(ctx, prompt, text)
	if err != nil {
		return nil, err
	}

	reply, err := core.ParseObject([]byte(content))
	if err != nil {
		customLog.Warnf("LLM: unparseable reply: %v", err)
		return nil, fmt.Errorf("%w: %w", ErrUnparseableReply, err)
	}

	return core.Reconcile(reply, schemas), nil
}
