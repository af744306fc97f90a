package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

// GenerateID generates a random ID with prefix
func GenerateID(prefix string) string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(b))
}

// GenerateClientID generates a unique client ID
func GenerateClientID() string {
	return GenerateID("client")
}

var roomNameWords = [][]string{
	{
		"amber", "brisk", "calm", "dusty", "eager", "fuzzy", "giant",
		"happy", "icy", "jolly", "keen", "lucky", "mellow", "noble",
		"odd", "proud", "quiet", "rapid", "shiny", "tidy", "vivid", "warm",
	},
	{
		"badger", "comet", "dingo", "ember", "falcon", "grove", "harbor",
		"iris", "jaguar", "kelp", "lagoon", "meteor", "nebula", "otter",
		"prairie", "quartz", "raven", "summit", "tundra", "vortex", "willow",
	},
}

// GenerateRoomName generates a readable random room name for temporary
// rooms, e.g. "brisk-otter-4821".
func GenerateRoomName() string {
	parts := make([]string, 0, 3)
	for _, words := range roomNameWords {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
		parts = append(parts, words[n.Int64()])
	}
	suffix, _ := rand.Int(rand.Reader, big.NewInt(10000))
	return fmt.Sprintf("%s-%s-%04d", parts[0], parts[1], suffix.Int64())
}
