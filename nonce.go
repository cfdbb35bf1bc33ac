package portmap

import "math/rand/v2"

// randomNonce generates a fresh PCP mapping nonce. The nonce only needs
// to be unpredictable enough that two concurrent MAP requests from this
// host don't collide in the gateway's mapping table, not cryptographic
// unpredictability, so math/rand/v2 is sufficient.
func randomNonce() Nonce {
	return Nonce{rand.Uint32(), rand.Uint32(), rand.Uint32()}
}
