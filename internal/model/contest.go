package model

// Difficulty grades a contest text.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Category groups contest texts by subject.
type Category string

const (
	CategoryGeneral     Category = "general"
	CategoryQuotes      Category = "quotes"
	CategoryProgramming Category = "programming"
)

// ContestText is an admin-curated passage eligible for typing tests.
type ContestText struct {
	ID         string     `json:"id" mapstructure:"-"`
	Text       string     `json:"text" mapstructure:"text"`
	Difficulty Difficulty `json:"difficulty" mapstructure:"difficulty"`
	Category   Category   `json:"category" mapstructure:"category"`
	Timestamp  int64      `json:"timestamp" mapstructure:"timestamp"`
	AddedBy    string     `json:"addedBy" mapstructure:"addedBy"`
}

// RequestStatus is the state of a join request. Accepted and rejected are
// terminal.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusRejected RequestStatus = "rejected"
)

// JoinRequest is a user's request to join the contest built around one
// contest text. ContestText is a snapshot taken when the request was sent.
type JoinRequest struct {
	ID          string        `json:"id" mapstructure:"-"`
	ContestID   string        `json:"contestId" mapstructure:"contestId"`
	ContestText string        `json:"contestText" mapstructure:"contestText"`
	UserID      string        `json:"userId" mapstructure:"userId"`
	UserEmail   string        `json:"userEmail" mapstructure:"userEmail"`
	Status      RequestStatus `json:"status" mapstructure:"status"`
	Timestamp   int64         `json:"timestamp" mapstructure:"timestamp"`
}
