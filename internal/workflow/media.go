package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/genforge/internal/storage"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

type outputKind int

const (
	outputImage outputKind = iota
	outputVideo
)

// mediaBuild turns a task input and the uploaded image URLs into a provider call.
type mediaBuild func(in models.Input, imageURLs []string, now time.Time) (endpoint string, payload map[string]any, err error)

type mediaSpec struct {
	toolType models.ToolType
	kind     outputKind
	// imageKey is the input key holding the local image path(s) to upload.
	imageKey string
	validate func(req *Request) (*Accepted, error)
	build    mediaBuild
	// unsupported tools validate and persist, then fail on execution.
	unsupported bool
}

func (s mediaSpec) fileName() string {
	if s.kind == outputVideo {
		return "video.mp4"
	}
	return "image.jpg"
}

// mediaWorkflow submits a job to the media provider and polls it to completion.
type mediaWorkflow struct {
	spec              mediaSpec
	provider          MediaProvider
	uploader          Uploader
	artifacts         Materializer
	now               func() time.Time
	uploadConcurrency int
}

func (w *mediaWorkflow) ToolType() models.ToolType {
	return w.spec.toolType
}

func (w *mediaWorkflow) Validate(req *Request) (*Accepted, error) {
	return w.spec.validate(req)
}

func (w *mediaWorkflow) Prepare(ctx context.Context, task *models.Task) (*Prepared, error) {
	if w.spec.unsupported {
		return nil, fmt.Errorf("%s is %w", w.spec.toolType, ErrNotSupported)
	}

	urls, err := w.upload(ctx, localImages(task.Input, w.spec.imageKey))
	if err != nil {
		return nil, err
	}

	endpoint, payload, err := w.spec.build(task.Input, urls, w.now())
	if err != nil {
		return nil, err
	}

	prompt := task.Input.String("prompt")
	return &Prepared{
		Task:       task,
		Prompt:     prompt,
		PromptInfo: map[string]any{"user_message": prompt},
		APIRequest: w.provider.Describe(endpoint, payload),
		Endpoint:   endpoint,
		Payload:    payload,
	}, nil
}

func localImages(in models.Input, key string) []string {
	if key == "" {
		return nil
	}
	if paths := in.Strings(key); len(paths) > 0 {
		return paths
	}
	if p := in.String(key); p != "" {
		return []string{p}
	}
	return nil
}

// upload publishes every local image concurrently. URLs keep the input order.
func (w *mediaWorkflow) upload(ctx context.Context, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	urls := make([]string, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	if w.uploadConcurrency > 0 {
		g.SetLimit(w.uploadConcurrency)
	}
	for i, p := range paths {
		g.Go(func() error {
			u, err := w.uploader.Upload(gctx, p)
			if err != nil {
				if errors.Is(err, storage.ErrUploadFailed) {
					return err
				}
				return fmt.Errorf("%w: %v", storage.ErrUploadFailed, err)
			}
			urls[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

func (w *mediaWorkflow) Submit(ctx context.Context, p *Prepared) (*Submission, error) {
	id, err := w.provider.Submit(ctx, p.Endpoint, p.Payload)
	if err != nil {
		return nil, err
	}
	return &Submission{Prepared: p, APIRequest: p.APIRequest, JobID: id}, nil
}

func (w *mediaWorkflow) Poll(ctx context.Context, s *Submission) (*Completion, error) {
	res, err := w.provider.Wait(ctx, s.JobID)
	if err != nil {
		return nil, err
	}
	if len(res.Outputs) == 0 {
		return nil, fmt.Errorf("%s: provider returned no outputs", w.spec.toolType)
	}
	return &Completion{Submission: s, RemoteURL: res.Outputs[0], APIResponse: res.Raw}, nil
}

func (w *mediaWorkflow) Materialize(ctx context.Context, c *Completion) (models.Output, error) {
	a, err := w.artifacts.Materialize(ctx, string(w.spec.toolType), w.spec.fileName(), c.RemoteURL)
	if err != nil {
		return nil, err
	}

	s := c.Submission
	out := models.Output{
		"api_request":  s.APIRequest,
		"api_response": c.APIResponse,
	}
	if w.spec.kind == outputVideo {
		out["video_url"] = a.URL
	} else {
		out["url"] = a.URL
		out["prompt"] = s.Prepared.PromptInfo
		if !a.Remote {
			out["image_path"] = a.LocalPath
		}
	}
	if a.Remote {
		out["remote_url"] = a.RemoteURL
	}
	return out, nil
}
