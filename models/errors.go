package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInitialization marks any failure while loading a model set.
	ErrInitialization = errors.New("model initialization failed")
	// ErrNotInitialized is returned when a model is used before initialization or after close.
	ErrNotInitialized = errors.New("model not initialized")
	// ErrInference marks a failure while running an initialized model.
	ErrInference = errors.New("inference failed")
	// ErrDecodeInconsistency is returned when output size and label count disagree.
	ErrDecodeInconsistency = errors.New("output size does not match label count")
	// ErrUnknownModel is returned for identifiers that were never configured.
	ErrUnknownModel = errors.New("unknown model")
)

// Phase is the pipeline stage in which an error occurred.
type Phase string

// Phase constants name the stages of loading and classification.
const (
	PhaseLoad   Phase = "load"
	PhaseEncode Phase = "encode"
	PhaseInfer  Phase = "infer"
	PhaseDecode Phase = "decode"
)

// Error carries the model, phase and kind of a failure alongside its cause.
//
// errors.Is matches both Kind and anything in the Err chain.
type Error struct {
	ModelID string
	Phase   Phase
	Kind    error
	Err     error
}

// NewError builds an *Error.
func NewError(modelID string, phase Phase, kind, err error) *Error {
	return &Error{ModelID: modelID, Phase: phase, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.ModelID != "" {
		msg = fmt.Sprintf("%s: model %q", msg, e.ModelID)
	}
	if e.Phase != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Phase)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
