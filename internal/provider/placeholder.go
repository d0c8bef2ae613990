package provider

import (
	"strings"

	"github.com/google/uuid"
)

// PlaceholderPrefix marks locally-synthesized ids for sends the
// provider only confirms later (webhook or inbound-sync confirmation).
const PlaceholderPrefix = "sent-"

// PlaceholderID returns a collision-resistant local id for a sent
// message awaiting provider confirmation. A random suffix is used
// rather than a timestamp so rapid sequential sends cannot collide.
func PlaceholderID() string {
	return PlaceholderPrefix + uuid.New().String()
}

// IsPlaceholderID reports whether id was synthesized by PlaceholderID.
func IsPlaceholderID(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}
