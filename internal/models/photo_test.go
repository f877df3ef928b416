package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhotoStatusTerminal(t *testing.T) {
	assert.False(t, PhotoStatusPending.Terminal())
	assert.False(t, PhotoStatusProcessing.Terminal())
	assert.True(t, PhotoStatusProcessed.Terminal())
	assert.True(t, PhotoStatusFailed.Terminal())
}

func TestEventProgressComplete(t *testing.T) {
	tests := []struct {
		name string
		prog EventProgress
		want bool
	}{
		{"no photos", EventProgress{}, false},
		{"all pending", EventProgress{TotalPhotos: 3}, false},
		{"partially processed", EventProgress{TotalPhotos: 3, ProcessedPhotos: 2}, false},
		{"all processed", EventProgress{TotalPhotos: 3, ProcessedPhotos: 3}, true},
		{"processed and failed", EventProgress{TotalPhotos: 3, ProcessedPhotos: 2, FailedPhotos: 1}, true},
		{"all failed", EventProgress{TotalPhotos: 2, FailedPhotos: 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.prog.Complete())
		})
	}
}
