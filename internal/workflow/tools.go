package workflow

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kiranshivaraju/genforge/pkg/models"
)

const (
	ModelSeedream = "seedream4.5"
	ModelWan26    = "wan2.6"
	ModelNanoPro  = "nanopro"

	VideoModelWan25 = "wan2.5"
	VideoModelWan26 = "wan2.6"
)

const (
	maxEditImages = 10
	maxViduImages = 7
)

var imageModels = []string{ModelSeedream, ModelWan26, ModelNanoPro}

// requireInputs reports every missing file upload and blank form field in one error.
func requireInputs(req *Request, files []string, fields ...string) error {
	var missing []string
	for _, f := range files {
		if len(req.FileList(f)) == 0 {
			missing = append(missing, f)
		}
	}
	for _, f := range fields {
		if !req.Has(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return invalid(missing[0], "%s is required", strings.Join(missing, ", "))
}

func valueOr(req *Request, name, def string) string {
	if v := req.Value(name); v != "" {
		return v
	}
	return def
}

func validateScript(req *Request) (*Accepted, error) {
	if err := requireFields(req, "description"); err != nil {
		return nil, err
	}
	return &Accepted{Input: map[string]any{"description": req.Value("description")}}, nil
}

func validateSingleShotStoryboard(req *Request) (*Accepted, error) {
	if err := requireFields(req, "script"); err != nil {
		return nil, err
	}
	expected, err := optionalInt(req, "expected_duration", 60)
	if err != nil {
		return nil, err
	}
	shot, err := optionalInt(req, "shot_duration", 5)
	if err != nil {
		return nil, err
	}
	return &Accepted{Input: map[string]any{
		"script":              req.Value("script"),
		"expected_duration":   expected,
		"shot_duration":       shot,
		"character_materials": jsonStrings(req, "character_materials"),
		"scene_materials":     jsonStrings(req, "scene_materials"),
		"prop_materials":      jsonStrings(req, "prop_materials"),
	}}, nil
}

func validateStoryboard(req *Request) (*Accepted, error) {
	if err := requireFields(req, "script"); err != nil {
		return nil, err
	}
	return &Accepted{Input: map[string]any{"script": req.Value("script")}}, nil
}

func validateShotPrompts(req *Request) (*Accepted, error) {
	if err := requireFields(req, "shot_description"); err != nil {
		return nil, err
	}
	duration, err := optionalInt(req, "duration", 5)
	if err != nil {
		return nil, err
	}
	return &Accepted{Input: map[string]any{
		"shot_description":  req.Value("shot_description"),
		"duration":          duration,
		"related_materials": jsonStrings(req, "related_materials"),
		"previous_shots":    jsonStrings(req, "previous_shots"),
		"next_shots":        jsonStrings(req, "next_shots"),
	}}, nil
}

func validateImageDescription(req *Request) (*Accepted, error) {
	if err := requireInputs(req, []string{"image"}, "material_type"); err != nil {
		return nil, err
	}
	return &Accepted{
		Input: map[string]any{
			"material_type": req.Value("material_type"),
			"description":   req.Value("description"),
		},
		Attachments: []Attachment{singleFile("image_path", req.FileList("image")[0])},
	}, nil
}

func validateStyleDescription(req *Request) (*Accepted, error) {
	if err := requireInputs(req, []string{"image"}); err != nil {
		return nil, err
	}
	return &Accepted{
		Input:       map[string]any{"description": req.Value("description")},
		Attachments: []Attachment{singleFile("image_path", req.FileList("image")[0])},
	}, nil
}

// imageOptions reads the options text_to_image and image_to_image share.
func imageOptions(req *Request) (map[string]any, error) {
	model := valueOr(req, "model", ModelSeedream)
	if !slices.Contains(imageModels, model) {
		return nil, invalid("model", "model must be one of %s", strings.Join(imageModels, ", "))
	}
	in := map[string]any{
		"prompt":       req.Value("prompt"),
		"model":        model,
		"aspect_ratio": valueOr(req, "aspect_ratio", "16:9"),
		"resolution":   valueOr(req, "resolution", "1k"),
	}
	if req.Has("seed") {
		seed, err := optionalInt(req, "seed", 0)
		if err != nil {
			return nil, err
		}
		in["seed"] = seed
	}
	return in, nil
}

func validateTextToImage(req *Request) (*Accepted, error) {
	if err := requireFields(req, "prompt"); err != nil {
		return nil, err
	}
	in, err := imageOptions(req)
	if err != nil {
		return nil, err
	}
	if req.Has("material_type") {
		in["material_type"] = req.Value("material_type")
	}
	return &Accepted{Input: in}, nil
}

func validateImageToImage(req *Request) (*Accepted, error) {
	if err := requireInputs(req, []string{"images"}, "prompt"); err != nil {
		return nil, err
	}
	in, err := imageOptions(req)
	if err != nil {
		return nil, err
	}
	return &Accepted{
		Input:       in,
		Attachments: []Attachment{indexedFiles("image_paths", req.FileList("images"))},
	}, nil
}

func validateVidu(req *Request) (*Accepted, error) {
	if err := requireInputs(req, []string{"images"}, "prompt", "aspect_ratio", "resolution", "duration"); err != nil {
		return nil, err
	}
	files := req.FileList("images")
	if len(files) > maxViduImages {
		files = files[:maxViduImages]
	}
	return &Accepted{
		Input: map[string]any{
			"prompt":       req.Value("prompt"),
			"aspect_ratio": req.Value("aspect_ratio"),
			"resolution":   req.Value("resolution"),
			"duration":     lenientInt(req, "duration", 5),
		},
		Attachments: []Attachment{indexedFiles("image_paths", files)},
	}, nil
}

func validateSora(req *Request) (*Accepted, error) {
	if err := requireInputs(req, []string{"image"}, "prompt", "duration"); err != nil {
		return nil, err
	}
	return &Accepted{
		Input: map[string]any{
			"prompt":   req.Value("prompt"),
			"duration": lenientInt(req, "duration", 4),
		},
		Attachments: []Attachment{singleFile("image_path", req.FileList("image")[0])},
	}, nil
}

func validateWan(req *Request) (*Accepted, error) {
	if err := requireInputs(req, []string{"image"}, "prompt", "resolution", "duration"); err != nil {
		return nil, err
	}
	model := valueOr(req, "model", VideoModelWan26)
	if model != VideoModelWan25 && model != VideoModelWan26 {
		return nil, invalid("model", "model must be one of %s, %s", VideoModelWan25, VideoModelWan26)
	}
	return &Accepted{
		Input: map[string]any{
			"prompt":       req.Value("prompt"),
			"model":        model,
			"resolution":   req.Value("resolution"),
			"duration":     lenientInt(req, "duration", 5),
			"enable_audio": models.ParseBool(req.Value("enable_audio")),
			"shot_type":    valueOr(req, "shot_type", "single"),
		},
		Attachments: []Attachment{singleFile("image_path", req.FileList("image")[0])},
	}, nil
}

func validateKeyframe(req *Request) (*Accepted, error) {
	if err := requireInputs(req, []string{"start_frame", "end_frame"}, "prompt", "aspect_ratio", "duration"); err != nil {
		return nil, err
	}
	frame := func(key string) Attachment {
		return Attachment{InputKey: key, Files: req.FileList(key)[:1], Names: []string{key + ".jpg"}}
	}
	return &Accepted{
		Input: map[string]any{
			"prompt":       req.Value("prompt"),
			"aspect_ratio": req.Value("aspect_ratio"),
			"duration":     lenientInt(req, "duration", 5),
		},
		Attachments: []Attachment{frame("start_frame"), frame("end_frame")},
	}, nil
}

func validateTextToAudio(req *Request) (*Accepted, error) {
	if err := requireFields(req, "text", "duration"); err != nil {
		return nil, err
	}
	return &Accepted{Input: map[string]any{
		"text":     req.Value("text"),
		"duration": lenientInt(req, "duration", 5),
	}}, nil
}

// imageSeed is the caller's seed, or the current unix time.
func imageSeed(in models.Input, now time.Time) int {
	return in.Int("seed", int(now.Unix()))
}

func buildTextToImage(in models.Input, _ []string, now time.Time) (string, map[string]any, error) {
	prompt := in.String("prompt")
	ar := in.String("aspect_ratio")
	res := in.String("resolution")
	seed := imageSeed(in, now)

	switch model := in.String("model"); model {
	case ModelSeedream, "":
		return "bytedance/seedream-v4.5", map[string]any{
			"prompt": prompt,
			"size":   SeedreamSize(ar, res),
			"seed":   seed,
		}, nil
	case ModelWan26:
		size, err := Wan26Size(ar, res)
		if err != nil {
			return "", nil, err
		}
		return "alibaba/wan-2.6/text-to-image", map[string]any{
			"prompt": prompt,
			"size":   size,
			"seed":   seed,
		}, nil
	case ModelNanoPro:
		return "google/nano-banana-pro/text-to-image", map[string]any{
			"prompt":       prompt,
			"aspect_ratio": ar,
			"resolution":   res,
			"seed":         seed,
		}, nil
	default:
		return "", nil, fmt.Errorf("unsupported image model %q", model)
	}
}

func buildImageToImage(in models.Input, urls []string, now time.Time) (string, map[string]any, error) {
	if len(urls) == 0 {
		return "", nil, fmt.Errorf("image_to_image needs at least one reference image")
	}
	prompt := in.String("prompt")
	ar := in.String("aspect_ratio")
	res := in.String("resolution")
	seed := imageSeed(in, now)

	switch model := in.String("model"); model {
	case ModelSeedream, "":
		if len(urls) > maxEditImages {
			urls = urls[:maxEditImages]
		}
		return "bytedance/seedream-v4.5/edit", map[string]any{
			"prompt": prompt,
			"images": urls,
			"size":   SeedreamSize(ar, res),
			"seed":   seed,
		}, nil
	case ModelWan26:
		size, err := Wan26Size(ar, res)
		if err != nil {
			return "", nil, err
		}
		return "alibaba/wan-2.6/image-edit", map[string]any{
			"prompt": prompt,
			"images": urls,
			"size":   size,
			"seed":   seed,
		}, nil
	case ModelNanoPro:
		return "google/nano-banana-pro/edit", map[string]any{
			"prompt":       prompt,
			"images":       urls,
			"aspect_ratio": ar,
			"resolution":   res,
			"seed":         seed,
		}, nil
	default:
		return "", nil, fmt.Errorf("unsupported image model %q", model)
	}
}

func buildVidu(in models.Input, urls []string, _ time.Time) (string, map[string]any, error) {
	if len(urls) == 0 {
		return "", nil, fmt.Errorf("vidu_ref_image_to_video needs at least one reference image")
	}
	ar := in.String("aspect_ratio")
	if ar == "" {
		ar = "16:9"
	}
	res := in.String("resolution")
	if res == "" {
		res = "720p"
	}
	return "vidu/reference-to-video-q2", map[string]any{
		"aspect_ratio":       ar,
		"resolution":         res,
		"duration":           in.Int("duration", 5),
		"movement_amplitude": "auto",
		"seed":               0,
		"images":             urls,
		"prompt":             in.String("prompt"),
	}, nil
}

func buildSora(in models.Input, urls []string, _ time.Time) (string, map[string]any, error) {
	if len(urls) == 0 {
		return "", nil, fmt.Errorf("sora_image_to_video needs an image")
	}
	return "openai/sora-2/image-to-video-pro", map[string]any{
		"duration": in.Int("duration", 4),
		"image":    urls[0],
		"prompt":   in.String("prompt"),
	}, nil
}

func buildWan(in models.Input, urls []string, _ time.Time) (string, map[string]any, error) {
	if len(urls) == 0 {
		return "", nil, fmt.Errorf("wan_image_to_video needs an image")
	}
	res := in.String("resolution")
	if res == "" {
		res = "720p"
	}
	payload := map[string]any{
		"resolution":              res,
		"duration":                in.Int("duration", 5),
		"enable_prompt_expansion": false,
		"seed":                    -1,
		"image":                   urls[0],
		"prompt":                  in.String("prompt"),
	}
	if in.String("model") == VideoModelWan25 {
		return "alibaba/wan-2.5/image-to-video", payload, nil
	}

	shotType := in.String("shot_type")
	if shotType == "" {
		shotType = "single"
	}
	payload["shot_type"] = shotType
	if in.Bool("enable_audio") {
		payload["enable_audio"] = true
	}
	return "alibaba/wan-2.6/image-to-video", payload, nil
}
