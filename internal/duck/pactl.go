package duck

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

// Pactl drives PulseAudio / PipeWire sink inputs through the pactl tool.
type Pactl struct{}

func (Pactl) Streams(ctx context.Context) ([]Stream, error) {
	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

func (Pactl) SetVolume(ctx context.Context, id, percent int) error {
	arg := fmt.Sprintf("%d%%", clamp(percent, 0, maxVolume))
	return exec.CommandContext(ctx, "pactl", "set-sink-input-volume", strconv.Itoa(id), arg).Run()
}

func parseSinkInputs(text string) []Stream {
	parts := strings.Split(text, "Sink Input #")
	if len(parts) <= 1 {
		return nil
	}

	var res []Stream
	for _, block := range parts[1:] {
		newline := strings.IndexByte(block, '\n')
		if newline <= 0 {
			continue
		}

		id, err := strconv.Atoi(strings.TrimSpace(block[:newline]))
		if err != nil {
			continue
		}

		s := Stream{ID: id}
		for _, line := range strings.Split(block[newline+1:], "\n") {
			line = strings.TrimSpace(line)

			switch {
			case strings.HasPrefix(line, "Volume:") && s.Volume == 0:
				if m := percentRe.FindStringSubmatch(line); len(m) >= 2 {
					if v, err := strconv.Atoi(m[1]); err == nil {
						s.Volume = v
					}
				}
			case strings.HasPrefix(line, "application.name =") && s.AppName == "":
				s.AppName = quoted(line)
			}
		}

		if s.Volume == 0 && s.AppName == "" {
			continue
		}
		res = append(res, s)
	}

	return res
}

// quoted returns the first double-quoted value on the line.
func quoted(line string) string {
	start := strings.IndexByte(line, '"')
	if start < 0 {
		return ""
	}
	rest := line[start+1:]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return ""
	}
	return rest[:end]
}
