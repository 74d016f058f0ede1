// Package rules derives follow-on events from base score updates. Derived
// events inherit the base event's id, timestamp and player, and travel the
// same dispatch path as the events read from the topic.
package rules

import (
	"encoding/json"
	"fmt"

	"playerfeed/internal/domain"
)

const (
	EventScoreUpdated      = "player.score.updated"
	EventLevelUp           = "player.level.up"
	EventAchievementUnlock = "player.achievement.unlocked"
	EventScoreAnomaly      = "player.score.anomaly_detected"
)

const (
	levelUpScore          = 1000
	achievementScore      = 5000
	anomalyDeltaThreshold = 500
	anomalyWindowSeconds  = 10
)

type scoreData struct {
	Delta       int `json:"delta"`
	ScoreBefore int `json:"score_before"`
	ScoreAfter  int `json:"score_after"`
	LevelBefore int `json:"level_before"`
	LevelAfter  int `json:"level_after"`
}

// Derive returns the events implied by a base event. Non-score events
// derive nothing. A malformed data payload also derives nothing.
func Derive(base *domain.Event) []domain.Event {
	if base.EventType != EventScoreUpdated {
		return nil
	}

	var data scoreData
	if err := json.Unmarshal(base.Data, &data); err != nil {
		return nil
	}

	var out []domain.Event

	if data.ScoreBefore < levelUpScore && data.ScoreAfter >= levelUpScore {
		out = append(out, derived(base, EventLevelUp, fmt.Sprintf(
			`{"old_level":%d,"new_level":%d,"score":%d}`,
			data.LevelBefore, data.LevelAfter, data.ScoreAfter,
		)))
	}

	if data.ScoreBefore < achievementScore && data.ScoreAfter >= achievementScore {
		out = append(out, derived(base, EventAchievementUnlock, fmt.Sprintf(
			`{"achievement":"Silver","score":%d}`,
			data.ScoreAfter,
		)))
	}

	if data.Delta >= anomalyDeltaThreshold || data.Delta <= -anomalyDeltaThreshold {
		out = append(out, derived(base, EventScoreAnomaly, fmt.Sprintf(
			`{"delta":%d,"window_seconds":%d}`,
			data.Delta, anomalyWindowSeconds,
		)))
	}

	return out
}

func derived(base *domain.Event, eventType, data string) domain.Event {
	return domain.Event{
		EventID:    base.EventID,
		EventType:  eventType,
		OccurredAt: base.OccurredAt,
		PlayerID:   base.PlayerID,
		Data:       json.RawMessage(data),
	}
}
