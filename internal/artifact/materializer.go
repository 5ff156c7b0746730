// Package artifact copies provider outputs from remote URLs into the local data directory.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

var ErrDownloadFailed = errors.New("artifact: download failed")

// FailurePolicy decides what happens to a task whose output could not be downloaded.
type FailurePolicy string

const (
	// PolicyFail fails the task.
	PolicyFail FailurePolicy = "fail"
	// PolicyFallback keeps the task successful and points the output at the remote URL.
	PolicyFallback FailurePolicy = "fallback"
)

// ParsePolicy maps a config value to a FailurePolicy.
func ParsePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case PolicyFail, PolicyFallback:
		return FailurePolicy(s), nil
	}
	return "", fmt.Errorf("unknown download failure policy %q", s)
}

// URLPrefix is the public path under which the data directory's outputs are served.
const URLPrefix = "/data/tools/outputs"

// Artifact is a materialized output.
type Artifact struct {
	// LocalPath is empty when Remote is true.
	LocalPath string
	// URL is what clients should fetch: the local public URL, or the remote URL under fallback.
	URL       string
	RemoteURL string
	Remote    bool
}

// Materializer downloads outputs to {dataDir}/tools/outputs/{toolType}/{outputID}/{fileName}.
type Materializer struct {
	root   string
	client *http.Client
	policy FailurePolicy
}

func NewMaterializer(dataDir string, client *http.Client, policy FailurePolicy) *Materializer {
	if client == nil {
		client = http.DefaultClient
	}
	if policy == "" {
		policy = PolicyFail
	}
	return &Materializer{
		root:   filepath.Join(dataDir, "tools", "outputs"),
		client: client,
		policy: policy,
	}
}

// Root is the directory that holds every tool's outputs.
func (m *Materializer) Root() string {
	return m.root
}

// Policy reports the configured failure policy.
func (m *Materializer) Policy() FailurePolicy {
	return m.policy
}

// Materialize downloads remoteURL into a fresh output directory for toolType.
// On failure the directory is removed, then the failure policy applies.
func (m *Materializer) Materialize(ctx context.Context, toolType, fileName, remoteURL string) (*Artifact, error) {
	outputID := uuid.NewString()
	dir := filepath.Join(m.root, toolType, outputID)
	localPath := filepath.Join(dir, fileName)

	err := m.Download(ctx, remoteURL, localPath)
	if err == nil {
		return &Artifact{
			LocalPath: localPath,
			URL:       fmt.Sprintf("%s/%s/%s/%s", URLPrefix, toolType, outputID, fileName),
			RemoteURL: remoteURL,
		}, nil
	}

	_ = os.RemoveAll(dir)

	if m.policy == PolicyFallback {
		slog.Warn("artifact download failed, using remote url",
			"tool_type", toolType,
			"remote_url", remoteURL,
			"error", err,
		)
		return &Artifact{URL: remoteURL, RemoteURL: remoteURL, Remote: true}, nil
	}
	return nil, err
}

// Download streams remoteURL to localPath. The body is written to localPath.tmp and renamed on success.
func (m *Materializer) Download(ctx context.Context, remoteURL, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned status %d", ErrDownloadFailed, remoteURL, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("%w: create output dir: %v", ErrDownloadFailed, err)
	}

	tmp := localPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: create file: %v", ErrDownloadFailed, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: write file: %v", ErrDownloadFailed, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: close file: %v", ErrDownloadFailed, err)
	}
	if err := os.Rename(tmp, localPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: rename file: %v", ErrDownloadFailed, err)
	}
	return nil
}
