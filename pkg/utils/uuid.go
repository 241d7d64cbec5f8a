package utils

import "github.com/google/uuid"

// GenerateUUID returns a random UUID v4 string, used to name scratch files
// that multiple ingest workers may create concurrently from inputs sharing
// a basename.
func GenerateUUID() string {
	return uuid.New().String()
}
