package realtime

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// ChannelID derives the channel identifier for a (room, scope, users)
// delivery policy. The function is pure: identical inputs always resolve to
// the same channel, so repeated subscriptions with the same policy share one
// channel instead of creating duplicates.
func ChannelID(roomID string, scope Scope, users Users) string {
	h := blake3.New()
	h.Write([]byte(roomID))
	h.Write([]byte{0})
	h.Write([]byte(scope))
	h.Write([]byte{0})
	h.Write([]byte(users))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
