package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/genforge/internal/provider/llm"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

// textPrompt is a composed chat request. System and User are what the task
// records as its prompt; Messages is what is sent.
type textPrompt struct {
	System   string
	User     string
	Messages []llm.Message
}

type textSpec struct {
	toolType  models.ToolType
	outputKey string
	maxTokens int
	validate  func(req *Request) (*Accepted, error)
	compose   func(p *Prompts, in models.Input) (*textPrompt, error)
}

// textWorkflow answers with a single chat completion.
type textWorkflow struct {
	spec    textSpec
	llm     Completer
	prompts *Prompts
}

func newTextWorkflow(spec textSpec, client Completer, prompts *Prompts) *textWorkflow {
	return &textWorkflow{spec: spec, llm: client, prompts: prompts}
}

func (w *textWorkflow) ToolType() models.ToolType {
	return w.spec.toolType
}

func (w *textWorkflow) Validate(req *Request) (*Accepted, error) {
	return w.spec.validate(req)
}

func (w *textWorkflow) Prepare(_ context.Context, task *models.Task) (*Prepared, error) {
	tp, err := w.spec.compose(w.prompts, task.Input)
	if err != nil {
		return nil, err
	}
	return &Prepared{
		Task:   task,
		Prompt: tp.User,
		PromptInfo: map[string]any{
			"system_prompt": tp.System,
			"user_message":  tp.User,
		},
		LLMRequest: llm.Request{Messages: tp.Messages, MaxTokens: w.spec.maxTokens},
	}, nil
}

func (w *textWorkflow) Submit(ctx context.Context, p *Prepared) (*Submission, error) {
	comp, err := w.llm.Complete(ctx, p.LLMRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", w.spec.toolType, err)
	}
	return &Submission{Prepared: p, APIRequest: comp.Request, Text: comp}, nil
}

// Poll returns at once; the completion arrived with the submission.
func (w *textWorkflow) Poll(_ context.Context, s *Submission) (*Completion, error) {
	return &Completion{Submission: s, APIResponse: s.Text.Response}, nil
}

func (w *textWorkflow) Materialize(_ context.Context, c *Completion) (models.Output, error) {
	s := c.Submission
	return models.Output{
		w.spec.outputKey: s.Text.Content,
		"raw_content":    s.Text.Content,
		"prompt":         s.Prepared.PromptInfo,
		"api_request":    s.APIRequest,
		"api_response":   c.APIResponse,
	}, nil
}

func composeScript(p *Prompts, in models.Input) (*textPrompt, error) {
	system := strings.TrimSpace(p.ScriptGeneration.System)
	user := in.String("description")
	return &textPrompt{
		System: system,
		User:   user,
		Messages: []llm.Message{
			llm.TextMessage(llm.RoleSystem, system),
			llm.TextMessage(llm.RoleUser, user),
		},
	}, nil
}

// userOnly builds a request whose only message is the rendered user template.
// The template's system label is recorded but not sent.
func userOnly(t Template, vars map[string]string) *textPrompt {
	user := strings.TrimSpace(Render(t.User, vars))
	return &textPrompt{
		System:   t.System,
		User:     user,
		Messages: []llm.Message{llm.TextMessage(llm.RoleUser, user)},
	}
}

func composeSingleShotStoryboard(p *Prompts, in models.Input) (*textPrompt, error) {
	return userOnly(p.SingleShotStoryboard, map[string]string{
		"script":              in.String("script"),
		"expected_duration":   fmt.Sprint(in.Int("expected_duration", 60)),
		"shot_duration":       fmt.Sprint(in.Int("shot_duration", 5)),
		"character_materials": joinOrNone(in.Strings("character_materials")),
		"scene_materials":     joinOrNone(in.Strings("scene_materials")),
		"prop_materials":      joinOrNone(in.Strings("prop_materials")),
	}), nil
}

func composeStoryboard(p *Prompts, in models.Input) (*textPrompt, error) {
	return userOnly(p.Storyboard, map[string]string{"script": in.String("script")}), nil
}

func composeShotPrompts(p *Prompts, in models.Input) (*textPrompt, error) {
	return userOnly(p.ShotPrompts, map[string]string{
		"shot_description":  in.String("shot_description"),
		"duration":          fmt.Sprint(in.Int("duration", 5)),
		"related_materials": joinOrNone(in.Strings("related_materials")),
		"previous_shots":    neighbourShots("前序分镜", in.Strings("previous_shots")),
		"next_shots":        neighbourShots("后续分镜", in.Strings("next_shots")),
	}), nil
}

// extraDescription renders the optional user description suffix.
func extraDescription(p *Prompts, desc string) string {
	if desc == "" {
		return ""
	}
	return Render(p.ExtraDescription, map[string]string{"user_description": desc})
}

func composeImageDescription(p *Prompts, in models.Input) (*textPrompt, error) {
	materialType := in.String("material_type")
	desc := in.String("description")
	system := strings.TrimSpace(Render(p.ImageToDescription.System, map[string]string{
		"material_type":    materialType,
		"user_description": desc,
	}))
	user := Render(p.ImageToDescription.User, map[string]string{"material_type": materialType}) +
		extraDescription(p, desc)
	return imagePrompt(system, user, in.String("image_path"))
}

func composeStyleDescription(p *Prompts, in models.Input) (*textPrompt, error) {
	desc := in.String("description")
	system := strings.TrimSpace(Render(p.ImageToStyleDescription.System, map[string]string{"user_description": desc}))
	user := strings.TrimSpace(p.ImageToStyleDescription.User) + extraDescription(p, desc)
	return imagePrompt(system, user, in.String("image_path"))
}

func imagePrompt(system, user, imagePath string) (*textPrompt, error) {
	if imagePath == "" {
		return nil, fmt.Errorf("image_path is missing from task input")
	}
	dataURL, err := llm.EncodeImageFile(imagePath)
	if err != nil {
		return nil, err
	}
	return &textPrompt{
		System: system,
		User:   user,
		Messages: []llm.Message{
			llm.TextMessage(llm.RoleSystem, system),
			llm.ImageMessage(user, dataURL),
		},
	}, nil
}
