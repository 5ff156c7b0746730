package workflow

import (
	"time"

	"github.com/kiranshivaraju/genforge/pkg/models"
)

// Deps are the collaborators the built-in workflows share.
type Deps struct {
	LLM       Completer
	Media     MediaProvider
	Uploader  Uploader
	Artifacts Materializer
	Prompts   *Prompts
	// Now defaults to time.Now.
	Now func() time.Time
	// UploadConcurrency bounds parallel uploads per task. Zero means unbounded.
	UploadConcurrency int
}

// NewDefaultRegistry registers every built-in tool.
func NewDefaultRegistry(d Deps) *Registry {
	now := d.Now
	if now == nil {
		now = time.Now
	}

	texts := []textSpec{
		{toolType: models.ToolGenerateScript, outputKey: "text", maxTokens: 2048, validate: validateScript, compose: composeScript},
		{toolType: models.ToolGenerateSingleShotStoryboard, outputKey: "text", validate: validateSingleShotStoryboard, compose: composeSingleShotStoryboard},
		{toolType: models.ToolGenerateStoryboard, outputKey: "text", validate: validateStoryboard, compose: composeStoryboard},
		{toolType: models.ToolGenerateShotPrompts, outputKey: "text", validate: validateShotPrompts, compose: composeShotPrompts},
		{toolType: models.ToolImageToDescription, outputKey: "description", maxTokens: 200, validate: validateImageDescription, compose: composeImageDescription},
		{toolType: models.ToolImageToStyleDescription, outputKey: "style_description", maxTokens: 200, validate: validateStyleDescription, compose: composeStyleDescription},
	}

	medias := []mediaSpec{
		{toolType: models.ToolTextToImage, kind: outputImage, validate: validateTextToImage, build: buildTextToImage},
		{toolType: models.ToolImageToImage, kind: outputImage, imageKey: "image_paths", validate: validateImageToImage, build: buildImageToImage},
		{toolType: models.ToolViduRefImageToVideo, kind: outputVideo, imageKey: "image_paths", validate: validateVidu, build: buildVidu},
		{toolType: models.ToolSoraImageToVideo, kind: outputVideo, imageKey: "image_path", validate: validateSora, build: buildSora},
		{toolType: models.ToolWanImageToVideo, kind: outputVideo, imageKey: "image_path", validate: validateWan, build: buildWan},
		{toolType: models.ToolKeyframeToVideo, kind: outputVideo, validate: validateKeyframe, unsupported: true},
		{toolType: models.ToolTextToAudio, kind: outputVideo, validate: validateTextToAudio, unsupported: true},
	}

	r := NewRegistry()
	for _, s := range texts {
		r.Register(newTextWorkflow(s, d.LLM, d.Prompts))
	}
	for _, s := range medias {
		r.Register(&mediaWorkflow{
			spec:              s,
			provider:          d.Media,
			uploader:          d.Uploader,
			artifacts:         d.Artifacts,
			now:               now,
			uploadConcurrency: d.UploadConcurrency,
		})
	}
	return r
}
