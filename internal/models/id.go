package models

import (
	"fmt"

	"github.com/google/uuid"
)

// NewID returns an id in the legacy server's format: 32 upper-case hex characters
func NewID() string {
	u := uuid.New()
	return fmt.Sprintf("%X", u[:])
}
