package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
)

// FFPlayPlayer plays raw mono s16le PCM once through ffplay.
type FFPlayPlayer struct {
	command string
}

func NewFFPlayPlayer(command string) *FFPlayPlayer {
	if command == "" {
		command = "ffplay"
	}
	return &FFPlayPlayer{command: command}
}

// Play blocks until playback finishes or ctx is cancelled.
func (p *FFPlayPlayer) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	if len(pcm) == 0 {
		return errors.New("no audio to play")
	}
	if sampleRate <= 0 {
		sampleRate = 24000
	}

	cmd := exec.CommandContext(ctx, p.command, playbackArgs(sampleRate)...)
	cmd.Stdin = bytes.NewReader(pcm)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if detail := trimStderr(stderr.String()); detail != "" {
			return fmt.Errorf("playback failed: %w: %s", err, detail)
		}
		return fmt.Errorf("playback failed: %w", err)
	}
	return nil
}

func playbackArgs(sampleRate int) []string {
	return []string{
		"-nodisp",
		"-autoexit",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ch_layout", "mono",
		"-i", "-",
	}
}
