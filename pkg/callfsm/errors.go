package callfsm

import "fmt"

// MediaAttachmentError не удалось подключить проигрывание или запись.
// Звонок при этом продолжается.
type MediaAttachmentError struct {
	// Direction "playback" или "recording"
	Direction string
	Path      string
	Err       error
}

func (e *MediaAttachmentError) Error() string {
	return fmt.Sprintf("media attach %s %q: %v", e.Direction, e.Path, e.Err)
}

func (e *MediaAttachmentError) Unwrap() error {
	return e.Err
}
