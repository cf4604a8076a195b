// Package queue defines message payloads exchanged over the message broker.
package queue

// ScoreQueueName is the durable queue finished attempts are published to.
const ScoreQueueName = "score.recorded"

// ScoreRecordedEvent is published after a finished attempt has been saved
// to the leaderboard. It carries enough for downstream consumers to log or
// aggregate without reading the document store.
type ScoreRecordedEvent struct {
    ScoreID    string `json:"score_id"`
    UserID     string `json:"user_id"`
    UserName   string `json:"user_name"`
    WPM        int    `json:"wpm"`
    Accuracy   int    `json:"accuracy"`
    Time       int    `json:"time"`
    RecordedAt string `json:"recorded_at"`
}
