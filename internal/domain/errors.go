package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAuthFailed         = errors.New("token check failed")
	ErrUserNotFound       = errors.New("user not found")
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrInvalidParams      = errors.New("invalid parameters")
	ErrProfileNotFound    = errors.New("control net profile not found")
	ErrInvalidImageFormat = errors.New("invalid image format")
	ErrBuildFailed        = errors.New("build payload failed")
	ErrGeneration         = errors.New("generation failed")
	ErrPersist            = errors.New("persist artifact failed")
	ErrUpload             = errors.New("upload artifact failed")
	ErrRecord             = errors.New("record drawing failed")
)
