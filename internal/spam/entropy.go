package spam

import "math"

// entropySampleLimit bounds the computation to the head of the content;
// templated spam shows its character distribution within the first kilobyte.
const entropySampleLimit = 1000

// entropyFloor is the bits/char threshold below which content rejects.
// Standard prose sits around 3.5 to 4.5; repeated-character floods fall
// under 2.0.
const entropyFloor = 2.0

// minEntropyLength exempts very short content, where a handful of distinct
// characters cannot reach the floor no matter how legitimate the text is.
const minEntropyLength = 20

// ShannonEntropy measures character-distribution diversity in bits per
// character over at most the first 1000 characters.
func ShannonEntropy(content string) float64 {
	runes := []rune(content)
	if len(runes) > entropySampleLimit {
		runes = runes[:entropySampleLimit]
	}
	if len(runes) == 0 {
		return 0
	}

	charCounts := make(map[rune]int)
	for _, char := range runes {
		charCounts[char]++
	}

	var entropy float64
	total := float64(len(runes))
	for _, count := range charCounts {
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}

	return entropy
}
