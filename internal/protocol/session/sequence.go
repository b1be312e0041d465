package session

// NextSequence advances seq by one, wrapping at modulus.
func NextSequence(seq uint8, modulus int) uint8 {
	if modulus <= 0 || modulus > MaxModulus {
		modulus = MaxModulus
	}
	return uint8((int(seq) + 1) % modulus)
}

// PrevSequence steps seq back by one, wrapping at modulus. It names the
// sequence a receiver has acked before it accepts anything.
func PrevSequence(seq uint8, modulus int) uint8 {
	if modulus <= 0 || modulus > MaxModulus {
		modulus = MaxModulus
	}
	return uint8((int(seq) + modulus - 1) % modulus)
}
