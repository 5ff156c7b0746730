package models

// ToolType identifies which generation capability a task invokes.
type ToolType string

const (
	ToolGenerateScript               ToolType = "generate_script"
	ToolGenerateSingleShotStoryboard ToolType = "generate_single_shot_storyboard"
	ToolGenerateStoryboard           ToolType = "generate_storyboard"
	ToolGenerateShotPrompts          ToolType = "generate_shot_prompts"
	ToolImageToDescription           ToolType = "image_to_description"
	ToolImageToStyleDescription      ToolType = "image_to_style_description"
	ToolTextToImage                  ToolType = "text_to_image"
	ToolImageToImage                 ToolType = "image_to_image"
	ToolViduRefImageToVideo          ToolType = "vidu_ref_image_to_video"
	ToolSoraImageToVideo             ToolType = "sora_image_to_video"
	ToolWanImageToVideo              ToolType = "wan_image_to_video"
	ToolKeyframeToVideo              ToolType = "keyframe_to_video"
	ToolTextToAudio                  ToolType = "text_to_audio"
)

var toolTypes = []ToolType{
	ToolGenerateScript,
	ToolGenerateSingleShotStoryboard,
	ToolGenerateStoryboard,
	ToolGenerateShotPrompts,
	ToolImageToDescription,
	ToolImageToStyleDescription,
	ToolTextToImage,
	ToolImageToImage,
	ToolViduRefImageToVideo,
	ToolSoraImageToVideo,
	ToolWanImageToVideo,
	ToolKeyframeToVideo,
	ToolTextToAudio,
}

// ToolTypes returns every known tool type in declaration order.
func ToolTypes() []ToolType {
	out := make([]ToolType, len(toolTypes))
	copy(out, toolTypes)
	return out
}

// ParseToolType returns the ToolType for s, or false if s is not a known tool type.
func ParseToolType(s string) (ToolType, bool) {
	for _, t := range toolTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

func (t ToolType) String() string { return string(t) }
