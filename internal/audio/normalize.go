// Package audio provides loudness normalization for finished audio files by
// invoking the external mp3gain binary.
package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/linyqh/edge-tts-service/internal/core"
)

// MP3GainNormalizer implements core.Normalizer by running mp3gain over the
// file in place. A non-zero exit is a normalization failure and the combined
// output is preserved in the error for diagnostics.
type MP3GainNormalizer struct {
	binary string
}

// NewMP3GainNormalizer creates a normalizer that invokes the given binary.
func NewMP3GainNormalizer(binary string) *MP3GainNormalizer {
	return &MP3GainNormalizer{
		binary: binary,
	}
}

// Normalize runs the binary with the caller-supplied parameter string split
// on whitespace, followed by the file path.
func (n *MP3GainNormalizer) Normalize(ctx context.Context, path, params string) error {
	args := strings.Fields(params)
	args = append(args, path)

	// #nosec G204 -- the binary comes from service configuration, not request input
	cmd := exec.CommandContext(ctx, n.binary, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %v - output: %s", core.ErrNormalization, err, string(output))
	}

	return nil
}
