package model

// ScoreEntry is the leaderboard copy of a finished typing attempt, stored
// in public/data/scores. It is written once and never updated.
type ScoreEntry struct {
	ID        string `json:"id" mapstructure:"-"`
	UserID    string `json:"userId" mapstructure:"userId"`
	UserName  string `json:"userName" mapstructure:"userName"`
	WPM       int    `json:"wpm" mapstructure:"wpm"`
	Accuracy  int    `json:"accuracy" mapstructure:"accuracy"`
	Time      int    `json:"time" mapstructure:"time"`
	Timestamp int64  `json:"timestamp" mapstructure:"timestamp"`
}

// HistoryEntry is the private copy of the same attempt stored under
// users/{uid}/my_scores. Text holds at most the first 100 characters of
// the typed passage.
type HistoryEntry struct {
	ID        string `json:"id" mapstructure:"-"`
	WPM       int    `json:"wpm" mapstructure:"wpm"`
	Accuracy  int    `json:"accuracy" mapstructure:"accuracy"`
	Time      int    `json:"time" mapstructure:"time"`
	Timestamp int64  `json:"timestamp" mapstructure:"timestamp"`
	Text      string `json:"text" mapstructure:"text"`
}

// HistoryTextLimit is how many characters of the passage a history entry
// keeps before truncating with "...".
const HistoryTextLimit = 100

// HistoryExcerpt shortens text to HistoryTextLimit characters.
func HistoryExcerpt(text string) string {
	r := []rune(text)
	if len(r) <= HistoryTextLimit {
		return text
	}
	return string(r[:HistoryTextLimit]) + "..."
}
