package service

import "errors"

var (
	ErrExtraction          = errors.New("extraction failed")
	ErrValidation          = errors.New("validation failed")
	ErrSelection           = errors.New("selection did not match")
	ErrProfileFetch        = errors.New("profile fetch failed")
	ErrCommit              = errors.New("commit failed")
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrMediaUnsupported    = errors.New("media not supported by extraction provider")
	ErrSessionBusy         = errors.New("session busy")
)
