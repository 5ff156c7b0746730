// Package workflow defines the generation tools. Each tool is a Workflow that
// validates a create request and then runs in four stages on a worker:
// Prepare, Submit, Poll and Materialize.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kiranshivaraju/genforge/internal/artifact"
	"github.com/kiranshivaraju/genforge/internal/provider/llm"
	"github.com/kiranshivaraju/genforge/internal/provider/wavespeed"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

var (
	ErrUnknownToolType = errors.New("unknown tool type")
	ErrNotSupported    = errors.New("not supported yet")
)

// Workflow is one generation tool.
type Workflow interface {
	ToolType() models.ToolType
	// Validate checks a create request and returns the task input to persist.
	// It runs synchronously in the API and returns a *ValidationError on bad input.
	Validate(req *Request) (*Accepted, error)
	Prepare(ctx context.Context, task *models.Task) (*Prepared, error)
	Submit(ctx context.Context, p *Prepared) (*Submission, error)
	Poll(ctx context.Context, s *Submission) (*Completion, error)
	Materialize(ctx context.Context, c *Completion) (models.Output, error)
}

// Prepared is a request ready to send to a provider.
type Prepared struct {
	Task *models.Task

	// Prompt is the text snapshotted on the task while it runs.
	Prompt     string
	PromptInfo map[string]any
	// APIRequest is the sanitized request, when it is known before submission.
	APIRequest map[string]any

	// LLM tools.
	LLMRequest llm.Request

	// Media tools.
	Endpoint string
	Payload  map[string]any
}

// Submission is a request the provider accepted.
type Submission struct {
	Prepared   *Prepared
	APIRequest map[string]any

	// JobID is set for media tools.
	JobID string
	// Text is set for LLM tools, which answer on submission.
	Text *llm.Completion
}

// Completion is a finished provider job.
type Completion struct {
	Submission  *Submission
	RemoteURL   string
	APIResponse map[string]any
}

// Completer is the part of the LLM client the text tools need.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Completion, error)
}

// MediaProvider is the part of the Wavespeed client the media tools need.
type MediaProvider interface {
	Submit(ctx context.Context, endpoint string, payload map[string]any) (string, error)
	Wait(ctx context.Context, id string) (*wavespeed.Result, error)
	Describe(endpoint string, payload map[string]any) map[string]any
}

// Uploader publishes a local file and returns a URL the provider can fetch.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// Materializer stores a provider output locally.
type Materializer interface {
	Materialize(ctx context.Context, toolType, fileName, remoteURL string) (*artifact.Artifact, error)
}

// Registry maps tool types to workflows.
type Registry struct {
	workflows map[models.ToolType]Workflow
}

func NewRegistry(workflows ...Workflow) *Registry {
	r := &Registry{workflows: make(map[models.ToolType]Workflow, len(workflows))}
	for _, w := range workflows {
		r.Register(w)
	}
	return r
}

// Register adds w, replacing any workflow already registered for its tool type.
func (r *Registry) Register(w Workflow) {
	r.workflows[w.ToolType()] = w
}

// Get returns the workflow for toolType or ErrUnknownToolType.
func (r *Registry) Get(toolType string) (Workflow, error) {
	tt, ok := models.ParseToolType(toolType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToolType, toolType)
	}
	w, ok := r.workflows[tt]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToolType, toolType)
	}
	return w, nil
}

// ToolTypes lists the registered tool types in sorted order.
func (r *Registry) ToolTypes() []models.ToolType {
	out := make([]models.ToolType, 0, len(r.workflows))
	for tt := range r.workflows {
		out = append(out, tt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
