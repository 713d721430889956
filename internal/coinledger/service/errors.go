package service

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidReferralCode = errors.New("invalid referral code")
	ErrAlreadyReferred     = errors.New("user already referred")
	ErrSelfReferral        = errors.New("self referral")
	// ErrCodeGenerationExhausted means every referral code candidate
	// collided. It points at a broken random source and needs an operator.
	ErrCodeGenerationExhausted = errors.New("referral code generation exhausted")
	ErrRateLimited             = errors.New("rate limited")
)
