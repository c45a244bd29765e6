package spam

import (
	"fmt"
	"hash/fnv"
	"math/bits"
	"strconv"
	"strings"
)

// DuplicateThreshold is the similarity at or above which two posts are
// near-duplicates.
const DuplicateThreshold = 0.95

const shingleSize = 3

// SimHash computes the 64-bit locality-sensitive hash of content: normalise
// to lowercase with collapsed whitespace, split into 3-character shingles,
// hash each with FNV-1a, accumulate a per-bit sign vector, and emit the sign
// bits.
func SimHash(content string) uint64 {
	normalized := normalize(content)
	runes := []rune(normalized)

	var weights [64]int
	emit := func(shingle string) {
		h := fnv.New64a()
		h.Write([]byte(shingle))
		sum := h.Sum64()
		for i := 0; i < 64; i++ {
			if sum>>uint(i)&1 == 1 {
				weights[i]++
			} else {
				weights[i]--
			}
		}
	}

	if len(runes) < shingleSize {
		if len(runes) > 0 {
			emit(normalized)
		}
	} else {
		for i := 0; i+shingleSize <= len(runes); i++ {
			emit(string(runes[i : i+shingleSize]))
		}
	}

	var out uint64
	for i := 0; i < 64; i++ {
		if weights[i] > 0 {
			out |= 1 << uint(i)
		}
	}
	return out
}

// Similarity maps the Hamming distance between two hashes onto [0,1].
func Similarity(a, b uint64) float64 {
	return 1 - float64(bits.OnesCount64(a^b))/64
}

// NearDuplicate reports whether two hashes cross the duplicate threshold.
func NearDuplicate(a, b uint64) bool {
	return Similarity(a, b) >= DuplicateThreshold
}

// FormatSimHash renders a hash in the 16-hex-digit storage form.
func FormatSimHash(v uint64) string {
	return fmt.Sprintf("%016x", v)
}

// ParseSimHash reverses FormatSimHash.
func ParseSimHash(s string) (uint64, error) {
	if len(s) != 16 {
		return 0, fmt.Errorf("invalid simhash %q: want 16 hex digits", s)
	}
	return strconv.ParseUint(s, 16, 64)
}

func normalize(content string) string {
	return strings.Join(strings.Fields(strings.ToLower(content)), " ")
}
