// Package capture models the capture flow around one analysis: the camera is
// opened, a photo is taken or uploaded, analysis runs, and the user either
// rates the result or retakes.
package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/matcha-check/internal/imageprocessor"
)

// Step is the position of a session in the capture flow.
type Step string

const (
	StepIdle       Step = "idle"
	StepScanning   Step = "scanning"
	StepProcessing Step = "processing"
	StepDone       Step = "done"
)

// ErrInvalidTransition is returned when an event does not apply to the current step.
var ErrInvalidTransition = errors.New("invalid capture transition")

// Session tracks one capture from start to result.
type Session struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Step      Step                   `json:"step"`
	ImageHash string                 `json:"image_hash,omitempty"`
	ImageURL  string                 `json:"image_url,omitempty"`
	Result    *imageprocessor.Result `json:"result,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// NewSession returns an idle session.
func NewSession(id, userID string, now time.Time) *Session {
	return &Session{ID: id, UserID: userID, Step: StepIdle, UpdatedAt: now}
}

// Start opens the camera.
func (s *Session) Start(now time.Time) error {
	if s.Step != StepIdle {
		return s.invalid(StepScanning)
	}
	s.Step = StepScanning
	s.UpdatedAt = now
	return nil
}

// Capture records the photo to analyze. Uploads skip the scanning step.
func (s *Session) Capture(imageHash string, now time.Time) error {
	if s.Step != StepIdle && s.Step != StepScanning {
		return s.invalid(StepProcessing)
	}
	s.Step = StepProcessing
	s.ImageHash = imageHash
	s.UpdatedAt = now
	return nil
}

// Complete stores the analysis result.
func (s *Session) Complete(result *imageprocessor.Result, imageURL string, now time.Time) error {
	if s.Step != StepProcessing {
		return s.invalid(StepDone)
	}
	if result == nil {
		return errors.New("capture: nil result")
	}
	s.Step = StepDone
	s.Result = result
	s.ImageURL = imageURL
	s.UpdatedAt = now
	return nil
}

// Retake drops the photo and any result. Valid from every step.
func (s *Session) Retake(now time.Time) {
	s.Step = StepIdle
	s.ImageHash = ""
	s.ImageURL = ""
	s.Result = nil
	s.UpdatedAt = now
}

// Done reports whether a result is available.
func (s *Session) Done() bool {
	return s.Step == StepDone && s.Result != nil
}

func (s *Session) invalid(to Step) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Step, to)
}
