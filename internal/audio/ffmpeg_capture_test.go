package audio

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clinscribe/internal/domain"
	"clinscribe/internal/ports"
)

func TestFFMPEGCaptureStartReadAndStop(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'frames'\nsleep 2\n")
	capture := NewFFMPEGCapture(script)

	session, err := capture.Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	buf := make([]byte, 16)
	n, readErr := session.Read(buf)
	if n <= 0 {
		t.Fatalf("expected audio bytes, got n=%d err=%v", n, readErr)
	}
	if n%bytesPerSample != 0 {
		t.Fatalf("expected whole frames, got %d bytes", n)
	}
	if !strings.HasPrefix("frames", string(buf[:n])) {
		t.Fatalf("unexpected bytes: %q", string(buf[:n]))
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestFFMPEGCaptureStartEarlyExitIsMicrophoneError(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'device busy' 1>&2\nexit 1\n")
	capture := NewFFMPEGCapture(script)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := capture.Start(ctx, ports.AudioConfig{})
	var micErr *domain.MicrophoneAccessError
	if !errors.As(err, &micErr) {
		t.Fatalf("expected microphone access error, got %v", err)
	}
	if !strings.Contains(err.Error(), "device busy") {
		t.Fatalf("expected stderr detail in error: %v", err)
	}
}

func TestFFMPEGCaptureMissingBinaryIsMicrophoneError(t *testing.T) {
	t.Parallel()

	capture := NewFFMPEGCapture(filepath.Join(t.TempDir(), "missing-ffmpeg"))
	_, err := capture.Start(context.Background(), ports.AudioConfig{})
	var micErr *domain.MicrophoneAccessError
	if !errors.As(err, &micErr) {
		t.Fatalf("expected microphone access error, got %v", err)
	}
}

func TestFFMPEGSessionReadHoldsBackPartialFrames(t *testing.T) {
	t.Parallel()

	session := &ffmpegSession{
		stdout:    io.NopCloser(strings.NewReader("abcde")),
		frameSize: 2,
	}

	buf := make([]byte, 8)
	n, err := session.Read(buf)
	if err != nil || n != 4 || string(buf[:n]) != "abcd" {
		t.Fatalf("unexpected first read: n=%d err=%v data=%q", n, err, buf[:n])
	}

	n, err = session.Read(buf)
	if n != 0 || !errors.Is(err, io.EOF) {
		t.Fatalf("expected dangling half frame to be dropped at EOF, got n=%d err=%v", n, err)
	}
}

func TestCaptureArgsUseConfiguredDevice(t *testing.T) {
	t.Parallel()

	args := strings.Join(captureArgs(normalizeAudioConfig(ports.AudioConfig{InputFormat: "alsa", InputDevice: "hw:1"})), " ")
	for _, want := range []string{"-f alsa", "-i hw:1", "-ar 16000", "-ac 1", "-f s16le"} {
		if !strings.Contains(args, want) {
			t.Fatalf("expected %q in %q", want, args)
		}
	}
}

func TestNormalizeStopErrExitErrorIsIgnored(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-c", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := normalizeStopErr(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
}

func TestFFPlayPlayerReportsFailure(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "ffplay.sh", "#!/usr/bin/env bash\ncat > /dev/null\necho 'no audio device' 1>&2\nexit 1\n")
	player := NewFFPlayPlayer(script)

	err := player.Play(context.Background(), []byte{0, 0, 1, 0}, 24000)
	if err == nil || !strings.Contains(err.Error(), "no audio device") {
		t.Fatalf("expected playback failure with detail, got %v", err)
	}
}

func TestFFPlayPlayerConsumesPCM(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "played.raw")
	script := writeScript(t, "ffplay.sh", "#!/usr/bin/env bash\ncat > "+out+"\n")
	player := NewFFPlayPlayer(script)

	if err := player.Play(context.Background(), []byte("pcm!"), 0); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil || string(data) != "pcm!" {
		t.Fatalf("expected pcm to be piped to player, got %q err=%v", data, err)
	}
}

func TestFFPlayPlayerRejectsEmptyAudio(t *testing.T) {
	t.Parallel()

	if err := NewFFPlayPlayer("").Play(context.Background(), nil, 24000); err == nil {
		t.Fatalf("expected empty audio error")
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
