package dpconsensus

// CalculateSignature derives the pseudorandom signature for a revealed
// pre-image against the previous round:
// every non-empty signature published in prev is XOR-folded together,
// XORed with inValue, and the result is hashed.
//
// The fold is order independent,
// so the result does not depend on map iteration order.
func CalculateSignature(prev Round, inValue Hash) Hash {
	var acc Hash
	for _, m := range prev.Miners {
		if m.Signature.IsEmpty() {
			continue
		}
		acc = acc.Xor(m.Signature)
	}
	return XorAndHash(inValue, acc)
}

// SignatureIsDerived reports whether a commitment in cur must carry
// a signature derived from its revealed previous pre-image,
// which is the case whenever prev directly precedes cur,
// including across a term change.
//
// Only the first round of the chain has no agreed set of previous signatures,
// and there any non-empty signature is accepted.
func SignatureIsDerived(cur Round, prev *Round) bool {
	return prev != nil &&
		!prev.IsEmpty() &&
		prev.RoundNumber+1 == cur.RoundNumber
}
