// Seed publisher: emits a run of player.score.updated events to the topic
// for local testing. Defaults step one player's score past the level-up
// threshold so the rules stage has something to derive.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"playerfeed/internal/domain"
	"playerfeed/internal/stream"
)

func main() {
	count := flag.Int("count", 20, "number of events to publish")
	player := flag.String("player", "12345", "player id")
	start := flag.Int("start", 990, "starting score")
	delta := flag.Int("delta", 10, "score delta per event")
	flag.Parse()

	_ = godotenv.Load()
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}
	channel := os.Getenv("EVENT_CHANNEL")
	if channel == "" {
		channel = "player-events"
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("parsing redis URL: %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	publisher := stream.NewPublisher(client, channel)

	score := *start
	for i := 0; i < *count; i++ {
		data := fmt.Sprintf(
			`{"delta":%d,"score_before":%d,"score_after":%d,"reason":"match_win","match_id":"m-7781"}`,
			*delta, score, score+*delta,
		)

		event := &domain.Event{
			EventID:    uuid.NewString(),
			EventType:  "player.score.updated",
			OccurredAt: time.Now().UTC(),
			PlayerID:   *player,
			Data:       json.RawMessage(data),
		}

		if err := publisher.Publish(ctx, event); err != nil {
			log.Fatalf("publishing event: %v", err)
		}

		log.Printf("sent: %s player=%s score=%d->%d", event.EventID, *player, score, score+*delta)
		score += *delta
	}
}
