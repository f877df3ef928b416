package queue

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
)

func TestPhotoConsumerConfig(t *testing.T) {
	cfg := photoConsumerConfig("photo-workers", 90*time.Second)

	assert.Equal(t, "photo-workers", cfg.Durable)
	assert.Equal(t, jetstream.AckExplicitPolicy, cfg.AckPolicy)
	assert.Equal(t, 90*time.Second, cfg.AckWait)
	assert.Equal(t, PhotosSubjectBase+".>", cfg.FilterSubject)

	// Unlimited redelivery: a photo left in processing by a transient
	// failure must keep reappearing until a worker commits and acks.
	assert.Equal(t, -1, cfg.MaxDeliver)
}
