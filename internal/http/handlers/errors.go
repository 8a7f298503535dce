package handlers

import (
	"errors"

	"github.com/dulaiduwang003/TIME-SEA-PLUS/internal/domain"
)

func classify(err error) (int, messageKey) {
	switch {
	case errors.Is(err, domain.ErrAuthFailed):
		return CodeAuthFailed, msgAuthFailed
	case errors.Is(err, domain.ErrInsufficientCredit):
		return CodeInsufficientCredit, msgInsufficientCredit
	case errors.Is(err, domain.ErrInvalidImageFormat):
		return CodeInvalidParams, msgInvalidImage
	case errors.Is(err, domain.ErrProfileNotFound):
		return CodeInvalidParams, msgProfileNotFound
	case errors.Is(err, domain.ErrInvalidParams):
		return CodeInvalidParams, msgInvalidParams
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUserNotFound):
		return CodeFailure, msgNotFound
	default:
		return CodeFailure, msgFailure
	}
}
