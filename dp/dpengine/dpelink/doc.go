// Package dpelink contains the narrow interfaces through which the
// [github.com/gordian-engine/gdpos/dp/dpengine.Engine] consults collaborators
// outside the consensus core: the election that chooses each term's validators
// and the distribution of rewards once a round closes.
package dpelink
