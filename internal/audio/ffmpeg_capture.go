package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"clinscribe/internal/domain"
	"clinscribe/internal/ports"
)

const bytesPerSample = 2

// FFMPEGCapture acquires the microphone through ffmpeg and emits s16le frames
// at the configured rate, the binary format the live channel expects.
type FFMPEGCapture struct {
	command      string
	startupProbe time.Duration
	stopTimeout  time.Duration
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{
		command:      command,
		startupProbe: 250 * time.Millisecond,
		stopTimeout:  1200 * time.Millisecond,
	}
}

// Start opens the input device. Any failure to acquire it is reported as a
// *domain.MicrophoneAccessError.
func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cfg = normalizeAudioConfig(cfg)

	cmd := exec.CommandContext(ctx, c.command, captureArgs(cfg)...)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &domain.MicrophoneAccessError{Err: fmt.Errorf("create ffmpeg stdout pipe: %w", err)}
	}
	if err := cmd.Start(); err != nil {
		return nil, &domain.MicrophoneAccessError{Err: fmt.Errorf("start ffmpeg: %w", err)}
	}

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
		close(exited)
	}()

	// A denied or missing device makes ffmpeg exit almost immediately.
	select {
	case err := <-exited:
		detail := trimStderr(stderr.String())
		if err != nil {
			return nil, &domain.MicrophoneAccessError{Err: fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, detail)}
		}
		return nil, &domain.MicrophoneAccessError{Err: errors.New("ffmpeg exited before capture started")}
	case <-time.After(c.startupProbe):
	}

	return &ffmpegSession{
		stdout:      stdout,
		stderr:      stderr,
		process:     cmd.Process,
		exited:      exited,
		frameSize:   bytesPerSample * cfg.Channels,
		stopTimeout: c.stopTimeout,
	}, nil
}

func normalizeAudioConfig(cfg ports.AudioConfig) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	return cfg
}

func captureArgs(cfg ports.AudioConfig) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

type ffmpegSession struct {
	stdout  io.ReadCloser
	stderr  *lockedBuffer
	process *os.Process
	exited  <-chan error

	frameSize   int
	pending     []byte
	stopTimeout time.Duration

	stopOnce sync.Once
	stopErr  error
}

// Read returns whole sample frames only; a trailing partial frame is held
// back and prefixed to the next read.
func (s *ffmpegSession) Read(p []byte) (int, error) {
	if len(p) < s.frameSize {
		return 0, io.ErrShortBuffer
	}

	n := copy(p, s.pending)
	s.pending = s.pending[:0]

	read, err := s.stdout.Read(p[n:])
	n += read

	whole := n - n%s.frameSize
	if whole < n {
		s.pending = append(s.pending, p[whole:n]...)
	}
	if whole == 0 && err == nil {
		return 0, nil
	}
	return whole, err
}

func (s *ffmpegSession) Close() error {
	return s.Stop()
}

// Stop interrupts ffmpeg, escalating to kill if it does not exit in time.
func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.exited:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(s.stopTimeout):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.exited; ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = closeErr
		}
		if s.stopErr != nil {
			if detail := trimStderr(s.stderr.String()); detail != "" {
				s.stopErr = fmt.Errorf("%w: %s", s.stopErr, detail)
			}
		}
	})

	return s.stopErr
}

// normalizeStopErr treats the exit status caused by our own interrupt as success.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimStderr(input string) string {
	const limit = 512
	trimmed := string(bytes.TrimSpace([]byte(input)))
	if len(trimmed) > limit {
		return trimmed[len(trimmed)-limit:]
	}
	return trimmed
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
