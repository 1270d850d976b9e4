package tracker

import (
	"fmt"
	"math/rand"
)

var nameAdjectives = []string{
	"eager", "brisk", "quiet", "vivid", "amber", "lucid", "stern", "gentle",
	"rapid", "mellow", "bold", "crisp", "dusky", "keen", "noble", "wry",
}

var nameNouns = []string{
	"snow", "fern", "comet", "river", "ember", "larch", "dune", "plume",
	"ridge", "grove", "spark", "tarn", "heron", "mesa", "drift", "moss",
}

// generateRunName produces a wandb-style adjective-noun-number display name.
func generateRunName(rng *rand.Rand) string {
	return fmt.Sprintf("%s-%s-%d",
		nameAdjectives[rng.Intn(len(nameAdjectives))],
		nameNouns[rng.Intn(len(nameNouns))],
		rng.Intn(900)+100,
	)
}
