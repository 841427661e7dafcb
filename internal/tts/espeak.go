// Package tts speaks text through espeak-ng.
package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
espeak_say(const char *text, const char *voice, int rate)
{
	if (!text)
	{ return -1; }

	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -2; }

	if (voice && voice[0])
	{
		espeak_VOICE specs;
		memset(&specs, 0, sizeof(specs));
		specs.languages = voice;
		espeak_SetVoiceByProperties(&specs);
	}
	espeak_SetParameter(espeakRATE, rate, 0);

	espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL);
	espeak_Synchronize();
	espeak_Terminate();

	return 0;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

// Espeak synthesizes and plays speech synchronously. Voice is an espeak
// language name such as "en" or "ru"; empty keeps the engine default.
type Espeak struct {
	Voice string

	mu sync.Mutex
}

func (e *Espeak) Say(text string, rate int) error {
	if text == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	cvoice := C.CString(e.Voice)
	defer C.free(unsafe.Pointer(cvoice))

	if rc := C.espeak_say(ctext, cvoice, C.int(rate)); rc != 0 {
		return fmt.Errorf("espeak_say failed: %d", int(rc))
	}

	return nil
}
