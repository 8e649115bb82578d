package encoder

import "errors"

// Failures of the encode step. None of them stops the worker; the packet that
// caused them is dropped and the next one is tried.
var (
	ErrEngineNotFound    = errors.New("encoder: engine not found")
	ErrContextAllocation = errors.New("encoder: engine config allocation failed")
	ErrOpenFailed        = errors.New("encoder: engine open failed")
	ErrBufferAllocation  = errors.New("encoder: frame buffer allocation failed")
	ErrUnsupportedFormat = errors.New("encoder: unsupported input format")
	ErrEngineExhausted   = errors.New("encoder: engine ended its stream without a flush")

	ErrAlreadyStarted = errors.New("encoder: stage already started")
)
