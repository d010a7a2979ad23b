package fairness

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
)

// digest computes a SHA-256 content hash of evaluation inputs using a
// canonical binary encoding: every slice is preceded by its length, bools
// encode as single bytes, floats as big-endian IEEE 754 bits and strings
// are length-prefixed. Two calls with equal data produce equal keys no
// matter when or in what order they happen.
func digest(kind string, yTrue, yPred []bool, yProb []float64, group []string) string {
	h := sha256.New()
	writeString(h, kind)
	writeBools(h, yTrue)
	writeBools(h, yPred)
	writeFloats(h, yProb)
	writeStrings(h, group)
	return hex.EncodeToString(h.Sum(nil))
}

// labelDigest hashes the inputs of the model-independent metrics.
func labelDigest(kind string, labels, group []string) string {
	h := sha256.New()
	writeString(h, kind)
	writeStrings(h, labels)
	writeStrings(h, group)
	return hex.EncodeToString(h.Sum(nil))
}

func writeLen(h hash.Hash, n int) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	h.Write(buf[:])
}

func writeString(h hash.Hash, s string) {
	writeLen(h, len(s))
	h.Write([]byte(s))
}

func writeBools(h hash.Hash, v []bool) {
	writeLen(h, len(v))
	for _, b := range v {
		if b {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}
}

func writeFloats(h hash.Hash, v []float64) {
	writeLen(h, len(v))
	var buf [8]byte
	for _, f := range v {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}
}

func writeStrings(h hash.Hash, v []string) {
	writeLen(h, len(v))
	for _, s := range v {
		writeString(h, s)
	}
}
