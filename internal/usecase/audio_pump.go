package usecase

import (
	"errors"
	"io"
	"sync/atomic"
	"time"

	"clinscribe/internal/ports"
)

// pumpAudioChunks forwards captured frames to the channel in capture order
// until the audio session ends. Once halted is set, frames are read and
// dropped so the recorder never blocks on a full pipe.
func pumpAudioChunks(
	audio ports.AudioSession,
	stream ports.StreamingSession,
	chunkSize int,
	halted *atomic.Bool,
	report func(error),
	done chan struct{},
) {
	defer close(done)

	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 && !halted.Load() {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				if !halted.Load() {
					report(sendErr)
				}
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !halted.Load() {
				report(err)
			}
			return
		}
	}
}

// closeStream closes the channel, giving up after timeout.
func closeStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Close()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errors.New("timed out closing transcription channel")
	}
}
