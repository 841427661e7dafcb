// Package audioconv turns recorded WAV files into the 16 kHz mono float
// samples local speech models expect.
package audioconv

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/wav"
)

const TargetRate = 16000

var ErrInvalidWAV = errors.New("invalid wav")

type Options struct {
	MaxSamples int
}

func LoadPCM16k(_ context.Context, path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if pb == nil || len(pb.Data) == 0 {
		return nil, nil
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}
	ch, sr := 1, TargetRate
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			ch = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sr = pb.Format.SampleRate
		}
	}

	x := Downmix(IntToFloat32(pb.Data, bd), ch)
	x = Resample(x, sr, TargetRate)
	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		x = x[:opt.MaxSamples]
	}
	return x, nil
}

func IntToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1.0, 1.0))
	}
	return out
}

// Downmix averages interleaved channels into mono.
func Downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	n := len(in) / channels
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		sum := 0.0
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// Resample uses linear interpolation.
func Resample(in []float32, inSR, outSR int) []float32 {
	if inSR == outSR || len(in) == 0 {
		return in
	}
	ratio := float64(outSR) / float64(inSR)
	outN := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, outN)
	for i := 0; i < outN; i++ {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		switch {
		case i0 >= len(in):
			out[i] = in[len(in)-1]
		case i1 >= len(in):
			out[i] = in[i0]
		default:
			a := float32(src - float64(i0))
			out[i] = in[i0]*(1-a) + in[i1]*a
		}
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
