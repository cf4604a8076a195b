package textsource

import "errors"

// Kind classifies why no passage could be produced.
type Kind string

const (
	KindAI      Kind = "ai"
	KindTimeout Kind = "timeout"
	KindNetwork Kind = "network"
)

// User-facing messages and the placeholder passages shown with them.
const (
	MsgAIFailed = "Failed to generate text (AI error). Please try again."
	MsgTimeout  = "Request timed out. Please try again."
	MsgNetwork  = "Failed to load text. Please try again."

	PlaceholderAI   = "Error generating text. Please restart."
	PlaceholderLoad = "Error loading text. Please restart."
)

// Error is a failed text request. Message is meant for the player.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

func aiError(err error) *Error {
	return &Error{Kind: KindAI, Message: MsgAIFailed, Err: err}
}

func timeoutError(err error) *Error {
	return &Error{Kind: KindTimeout, Message: MsgTimeout, Err: err}
}

func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Message: MsgNetwork, Err: err}
}

// ErrEmptyResponse is returned when a generator answered without any text.
var ErrEmptyResponse = errors.New("no usable AI content in response")

// ErrNoGenerator is returned by GenerateContestText when no AI backend is
// configured.
var ErrNoGenerator = errors.New("AI text generation is not available")
