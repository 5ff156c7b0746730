package llm

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// auditURLLimit is how much of an inline image URL the audit copy keeps.
const auditURLLimit = 100

// Message is a chat message. Content is either a string or a []ContentPart.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

func TextMessage(role, text string) Message {
	return Message{Role: role, Content: text}
}

// ImageMessage is a user message carrying text followed by one image part per URL.
func ImageMessage(text string, imageURLs ...string) Message {
	parts := []ContentPart{{Type: "text", Text: text}}
	for _, u := range imageURLs {
		parts = append(parts, ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: u}})
	}
	return Message{Role: RoleUser, Content: parts}
}

var imageMIMETypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// EncodeImageFile reads an image from disk and returns it as a base64 data URL.
func EncodeImageFile(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mime, ok := imageMIMETypes[ext]
	if !ok {
		return "", fmt.Errorf("unsupported image type %q", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (m Message) sanitized() map[string]any {
	parts, ok := m.Content.([]ContentPart)
	if !ok {
		return map[string]any{"role": m.Role, "content": m.Content}
	}
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		if p.ImageURL == nil {
			out = append(out, map[string]any{"type": p.Type, "text": p.Text})
			continue
		}
		url := p.ImageURL.URL
		if len(url) > auditURLLimit {
			url = fmt.Sprintf("%s... (base64 truncated, original length: %d chars)", url[:auditURLLimit], len(url))
		}
		out = append(out, map[string]any{"type": p.Type, "image_url": map[string]any{"url": url}})
	}
	return map[string]any{"role": m.Role, "content": out}
}
