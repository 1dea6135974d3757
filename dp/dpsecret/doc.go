// Package dpsecret lets a validator's commitment pre-image be recovered
// by its peers when the validator fails to reveal it.
//
// The dealer splits its pre-image with a systematic Reed-Solomon code:
// the data shards are the pre-image followed by random padding,
// and only the parity shards are handed out, one per validator.
// Because the code is maximum distance separable,
// any threshold of parity shards recover the data shards,
// and fewer than threshold reveal nothing about the pre-image.
//
// Each share is sealed for its recipient with NaCl box
// before it is published in the dealer's round entry.
package dpsecret
