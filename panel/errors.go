package panel

import (
	"errors"
	"fmt"

	"github.com/Haibread/tempvoice/channels"
)

// BotError carries a message safe to show the member next to the error that is logged.
type BotError struct {
	UserMessage string
	LogMessage  string
	Err         error
	// System marks failures the member cannot fix; they are logged as errors.
	System bool
}

func (e *BotError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.LogMessage, e.Err)
	}
	return e.LogMessage
}

func (e *BotError) Unwrap() error {
	return e.Err
}

// NewUserError is for failures caused by the member (wrong owner, bad input...).
func NewUserError(userMessage, logMessage string, err error) *BotError {
	return &BotError{UserMessage: userMessage, LogMessage: logMessage, Err: err}
}

// NewSystemError is for failures the member cannot fix.
func NewSystemError(err error, logMessage string) *BotError {
	return &BotError{
		UserMessage: "Something went wrong. Please try again later.",
		LogMessage:  logMessage,
		Err:         err,
		System:      true,
	}
}

var userMessages = []struct {
	err error
	msg string
}{
	{channels.ErrNotOwner, "Only the channel owner can use these controls."},
	{channels.ErrNotAdmin, "You need the Manage Channels permission to use the admin panel."},
	{channels.ErrNotManaged, "This is not a temporary voice channel anymore."},
	{channels.ErrChannelGone, "This channel no longer exists."},
	{channels.ErrPermissionDenied, "I am missing the permissions needed to do that in this channel."},
	{channels.ErrNotPresent, "That member is not in the channel."},
	{channels.ErrOwnerPresent, "The owner is still in the channel."},
	{channels.ErrAlreadyOwner, "That member already owns the channel."},
	{channels.ErrAlreadyClaimed, "Someone else claimed the channel first."},
}

// Classify turns an operation error into a BotError.
func Classify(err error, action Action) *BotError {
	var botErr *BotError
	if errors.As(err, &botErr) {
		return botErr
	}
	var invalid *channels.ValidationError
	if errors.As(err, &invalid) {
		return NewUserError(invalid.Message, fmt.Sprintf("rejected %s input", action), err)
	}
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return NewUserError(m.msg, fmt.Sprintf("%s rejected", action), err)
		}
	}
	return NewSystemError(err, fmt.Sprintf("%s failed", action))
}

// Content is the ephemeral reply for the error.
func (e *BotError) Content() string {
	return "❌ " + e.UserMessage
}
