// SPDX-License-Identifier: MIT
package patch

import "math/rand/v2"

// Noise produces uniform white noise in [-1, 1).
type Noise struct {
	rng *rand.Rand
}

func NewNoise(seed uint64) *Noise {
	return &Noise{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (n *Noise) Fill(buf []float32, gain float32) {
	for i := range buf {
		buf[i] = (n.rng.Float32()*2 - 1) * gain
	}
}
