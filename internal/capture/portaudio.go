package capture

import (
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"

	"github.com/doismellburning/speakersafetyd/internal/faults"
)

// PortAudioStream is the production Stream, backed by a blocking
// github.com/gordonklaus/portaudio input stream.
type PortAudioStream struct {
	stream *portaudio.Stream
	buf    []int16
}

// OpenPortAudio initializes PortAudio, locates the named input device, and
// opens+starts a blocking stream of period frames across channels streams.
// It implements capture.Opener.
func OpenPortAudio(deviceName string, channels, period int) (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, faults.Wrap(faults.CaptureFault, "portaudio initialize", err)
	}

	dev, err := findInputDevice(deviceName)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}

	buf := make([]int16, period*channels)

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      dev.DefaultSampleRate,
		FramesPerBuffer: period,
	}

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, faults.Wrap(faults.CaptureFault, fmt.Sprintf("open capture stream %q", deviceName), err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, faults.Wrap(faults.CaptureFault, "start capture stream", err)
	}

	return &PortAudioStream{stream: stream, buf: buf}, nil
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, faults.Wrap(faults.CaptureFault, "enumerate capture devices", err)
	}

	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}

	return nil, faults.New(faults.CaptureFault, fmt.Sprintf("capture device %q not found", name))
}

// Read blocks for exactly one period. A suspend condition surfaces from the
// ALSA host API as a host-error string rather than a typed PortAudio
// constant; isSuspendError matches on it the same way the upstream source
// matched on -ESTRPIPE.
func (s *PortAudioStream) Read(buf []int16) error {
	if len(buf) != len(s.buf) {
		return faults.New(faults.CaptureFault, "capture read size mismatch")
	}

	if err := s.stream.Read(); err != nil {
		switch {
		case isSuspendError(err):
			return ErrSuspended
		case isInterruptedError(err):
			return ErrInterrupted
		default:
			return faults.Wrap(faults.CaptureFault, "capture read", err)
		}
	}

	copy(buf, s.buf)
	return nil
}

func (s *PortAudioStream) Close() error {
	_ = s.stream.Stop()
	err := s.stream.Close()
	_ = portaudio.Terminate()
	return err
}

func isSuspendError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "suspend")
}

func isInterruptedError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "interrupt") || strings.Contains(msg, "eintr")
}
