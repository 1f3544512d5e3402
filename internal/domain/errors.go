package domain

import "errors"

// Extraction outcomes shared by document extractors and their callers.
var (
	ErrUploadRejected    = errors.New("upload rejected")
	ErrExtractionTimeout = errors.New("polling attempts exhausted")
	ErrExtractionFailed  = errors.New("processing failed")
	ErrUnexpectedPayload = errors.New("unexpected payload")
)
