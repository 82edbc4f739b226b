package dice

import (
	"crypto/rand"
	"math/big"
	mrand "math/rand/v2"
	"sync"
)

type cryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand.
func NewCryptoSource() Source {
	return cryptoSource{}
}

// Intn panics if n <= 0 or crypto/rand fails.
func (cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic("dice: Intn called with n <= 0")
	}
	val, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("dice: crypto/rand failure: " + err.Error())
	}
	return int(val.Int64())
}

// pcgStream is the fixed second PCG seed word; only the configured seed varies.
const pcgStream = 0x9e3779b97f4a7c15

// seededSource is a deterministic Source for reproducible simulations.
type seededSource struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewSeededSource returns a deterministic Source. A zero seed is replaced by 1
// so that an unset config value still yields a stable sequence.
//
// Postcondition: two sources built from the same seed yield identical sequences.
func NewSeededSource(seed int64) Source {
	if seed == 0 {
		seed = 1
	}
	return &seededSource{rng: mrand.New(mrand.NewPCG(uint64(seed), pcgStream))}
}

func (s *seededSource) Intn(n int) int {
	if n <= 0 {
		panic("dice: Intn called with n <= 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}
