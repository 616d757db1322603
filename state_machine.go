package accounts

import (
	"crypto/subtle"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

const textCodeInvalidTransition = "INVALID_CONFIRMATION_TRANSITION"

// ErrInvalidTransition is returned when a confirmation change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid confirmation transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ConfirmationState is the email confirmation state of an account
type ConfirmationState string

const (
	StateUnconfirmed ConfirmationState = "unconfirmed"
	StateConfirmed   ConfirmationState = "confirmed"
)

// Confirmed is terminal
var confirmationTransitions = map[ConfirmationState][]ConfirmationState{
	StateUnconfirmed: {StateConfirmed},
	StateConfirmed:   {},
}

// ConfirmationStateOf returns the state of user
func ConfirmationStateOf(user *User) ConfirmationState {
	if user != nil && user.Confirmed {
		return StateConfirmed
	}
	return StateUnconfirmed
}

func canTransition(from, to ConfirmationState) bool {
	for _, allowed := range confirmationTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Confirm moves user from Unconfirmed to Confirmed when code matches the
// stored activation code, and clears the code. user is only modified on
// success.
func (g AccountStateGuard) Confirm(user *User, code string) error {
	if user == nil {
		return ErrActivationCodeNotFound.Clone()
	}

	from := ConfirmationStateOf(user)
	if from == StateConfirmed {
		return withCause(ErrAlreadyConfirmed, nil, map[string]any{"user_id": user.ID.String()})
	}

	if !canTransition(from, StateConfirmed) {
		return withCause(ErrInvalidTransition, fmt.Errorf("%s -> %s", from, StateConfirmed), nil)
	}

	if user.EmailCode == nil || *user.EmailCode == "" ||
		subtle.ConstantTimeCompare([]byte(*user.EmailCode), []byte(code)) != 1 {
		return withCause(ErrActivationCodeMismatch, nil, map[string]any{"user_id": user.ID.String()})
	}

	user.Confirmed = true
	user.EmailCode = nil
	return nil
}
