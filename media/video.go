package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// TranscodeAV1 runs ffmpeg out-of-process to transcode data to AV1 at
// 720p, targeting bitrateKbps. video.* transforms are explicitly marked
// not cancel-safe in the fingerprint registry: ffmpeg is given the whole
// input on disk and writes its whole output before this function returns,
// so there is no safe point to interrupt it mid-write without corrupting
// the op, and it must run to completion even if every waiter disconnects.
func TranscodeAV1(ctx context.Context, data []byte, bitrateKbps int) ([]byte, error) {
	if bitrateKbps <= 0 {
		bitrateKbps = 2000
	}

	dir, err := os.MkdirTemp("", "home-transcode-*")
	if err != nil {
		return nil, fmt.Errorf("media: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "in")
	outPath := filepath.Join(dir, "out.mp4")
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("media: write input: %w", err)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", inPath,
		"-vf", "scale=-2:720",
		"-c:v", "libaom-av1",
		"-b:v", fmt.Sprintf("%dk", bitrateKbps),
		"-c:a", "libopus",
		outPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("media: ffmpeg transcode: %w: %s", err, stderr.String())
	}

	return os.ReadFile(outPath)
}
