package types

import (
	"crypto/rand"
	"math/big"
)

var runNameAdjectives = []string{
	"amber", "brisk", "calm", "dapper", "eager", "fuzzy", "gentle", "hazy",
	"icy", "jolly", "keen", "lucid", "mellow", "nimble", "olive", "plucky",
	"quiet", "rusty", "sunny", "tidy", "urban", "vivid", "witty", "zesty",
}

var runNameNouns = []string{
	"badger", "comet", "dolphin", "ember", "falcon", "glacier", "heron", "iris",
	"jackal", "kestrel", "lantern", "meadow", "nebula", "otter", "pebble", "quartz",
	"raven", "spruce", "tundra", "urchin", "violet", "walrus", "yarrow", "zephyr",
}

// RandomRunName returns a readable adjective_noun label for an unnamed run.
func RandomRunName() string {
	return pick(runNameAdjectives) + "_" + pick(runNameNouns)
}

func pick(words []string) string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		return words[0]
	}
	return words[n.Int64()]
}
