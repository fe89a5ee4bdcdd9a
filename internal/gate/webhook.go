package gate

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/sourcequal/codequal/internal/model"
)

// pull_request event_types that trigger a webhook-originated Check.
var triggeringEvents = map[string]bool{
	"opened":      true,
	"synchronize": true,
	"reopened":    true,
}

// HandleWebhook parses a CI/SCM pull_request payload and, if its
// event_type is one that should trigger a gate check, runs one. Unknown
// event types are ignored, not errors.
func (e *Engine) HandleWebhook(ctx context.Context, payload []byte) (*Result, error) {
	root := gjson.ParseBytes(payload)
	eventType := root.Get("event_type").String()
	if !triggeringEvents[eventType] {
		return nil, nil
	}

	cloneURL := root.Get("repository.clone_url").String()
	branch := root.Get("pull_request.head.ref").String()
	commit := root.Get("pull_request.head.sha").String()
	prNumber := int(root.Get("pull_request.number").Int())

	if cloneURL == "" {
		return nil, fmt.Errorf("webhook payload missing repository.clone_url")
	}

	repo, err := e.store.FindRemoteRepository(ctx, cloneURL, branch)
	if err != nil {
		return nil, fmt.Errorf("resolve webhook repository: %w", err)
	}

	return e.Check(ctx, repo.ID, model.TriggeredWebhook, branch, commit, prNumber)
}
