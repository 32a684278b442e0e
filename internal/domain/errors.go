package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnavailable       = errors.New("persistence unavailable")
	ErrSelfReferral      = errors.New("self referral")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidType       = errors.New("invalid transaction type")
	ErrAlreadyCompleted  = errors.New("campaign already completed")
	ErrCampaignInactive  = errors.New("campaign inactive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBelowMinimum      = errors.New("amount below minimum withdrawal")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrUserInactive      = errors.New("user inactive")

	ErrUserNotFound     = fmt.Errorf("user %w", ErrNotFound)
	ErrCampaignNotFound = fmt.Errorf("campaign %w", ErrNotFound)
)
