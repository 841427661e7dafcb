package audio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gordonklaus/portaudio"

	"voxchat/internal/capture"
)

// PortAudio is a capture.Device backed by a PortAudio input device.
type PortAudio struct {
	name string
	info *portaudio.DeviceInfo
}

func Init() error {
	return portaudio.Initialize()
}

func Terminate() {
	portaudio.Terminate()
}

// NewPortAudio resolves name to an input device: empty or "default" picks
// the host default, digits select by index, anything else matches a
// substring of the device name.
func NewPortAudio(name string) (*PortAudio, error) {
	info, err := lookup(name)
	if err != nil {
		return nil, err
	}
	return &PortAudio{name: name, info: info}, nil
}

// DefaultSampleRate is the native rate of the selected input device.
func (p *PortAudio) DefaultSampleRate() int {
	return int(p.info.DefaultSampleRate)
}

func (p *PortAudio) Name() string {
	return p.info.Name
}

func (p *PortAudio) Open(cfg capture.StreamConfig, callback func(in []float32)) (capture.Stream, error) {
	if p.info.MaxInputChannels < cfg.Channels {
		return nil, fmt.Errorf("device %q has %d input channels, %d requested",
			p.info.Name, p.info.MaxInputChannels, cfg.Channels)
	}

	params := portaudio.HighLatencyParameters(p.info, nil)
	params.Input.Channels = cfg.Channels
	params.SampleRate = cfg.SampleRate
	params.FramesPerBuffer = cfg.BlockFrames

	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func lookup(name string) (*portaudio.DeviceInfo, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "default" {
		info, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("default input device: %w", err)
		}
		return info, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	if idx, err := strconv.Atoi(name); err == nil {
		for _, d := range devices {
			if d.Index == idx && d.MaxInputChannels > 0 {
				return d, nil
			}
		}
		return nil, fmt.Errorf("no input device with index %d", idx)
	}

	lower := strings.ToLower(name)
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), lower) {
			return d, nil
		}
	}

	return nil, fmt.Errorf("no input device matching %q", name)
}
