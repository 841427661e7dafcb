// Package stt runs speech recognition locally with whisper.cpp.
package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"voxchat/pkg/audioconv"
)

type Options struct {
	Language      string // "auto", "en", "ru", ...
	TranslateToEn bool
	Threads       int // <=0 => NumCPU()
	InitialPrompt string
	BeamSize      int // 0 = greedy
	// MaxSeconds bounds how much audio is fed to the model; 0 = all.
	MaxSeconds int
}

type Segment struct {
	Text     string
	StartSec float64
	EndSec   float64
}

type Result struct {
	Text     string
	Segments []Segment
	Language string
}

type Transcriber struct {
	model whisper.Model
	opt   Options
}

func NewTranscriber(modelPath string, opt Options) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &Transcriber{model: m, opt: opt}, nil
}

func (t *Transcriber) Close() error {
	if t.model == nil {
		return nil
	}
	return t.model.Close()
}

// Recognize transcribes a recorded WAV file. Silence yields empty text.
func (t *Transcriber) Recognize(ctx context.Context, path string) (string, error) {
	pcm, err := audioconv.LoadPCM16k(ctx, path, audioconv.Options{
		MaxSamples: t.opt.MaxSeconds * audioconv.TargetRate,
	})
	if err != nil {
		return "", fmt.Errorf("load audio: %w", err)
	}
	if len(pcm) == 0 {
		return "", nil
	}

	res, err := t.TranscribePCM(ctx, pcm)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Text), nil
}

// TranscribePCM expects mono 16 kHz float32 samples in [-1, 1].
func (t *Transcriber) TranscribePCM(ctx context.Context, pcm16k []float32) (Result, error) {
	if t.model == nil {
		return Result{}, errors.New("nil model")
	}
	if len(pcm16k) == 0 {
		return Result{}, errors.New("no audio samples provided")
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("new context: %w", err)
	}

	opt := t.opt
	if opt.Language == "" {
		opt.Language = "auto"
	}
	if err := wctx.SetLanguage(opt.Language); err != nil {
		return Result{}, fmt.Errorf("set language: %w", err)
	}
	wctx.SetTranslate(opt.TranslateToEn)

	threads := opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if opt.BeamSize > 0 {
		wctx.SetBeamSize(opt.BeamSize)
	}
	if opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(opt.InitialPrompt)
	}

	if err := wctx.Process(pcm16k, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("process: %w", err)
	}

	var (
		segs  []Segment
		parts []string
	)
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("next segment: %w", err)
		}
		segs = append(segs, Segment{
			Text:     s.Text,
			StartSec: s.Start.Seconds(),
			EndSec:   s.End.Seconds(),
		})
		parts = append(parts, strings.TrimSpace(s.Text))
	}

	lang := wctx.DetectedLanguage()
	if lang == "" {
		lang = wctx.Language()
	}

	return Result{
		Text:     strings.Join(parts, " "),
		Segments: segs,
		Language: lang,
	}, nil
}
