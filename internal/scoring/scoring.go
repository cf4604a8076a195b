// Package scoring turns a finished typing attempt into words per minute and
// accuracy. Both functions are pure.
package scoring

import "math"

// charsPerWord is the standard word length used by WPM.
const charsPerWord = 5

// ComputeWPM returns round((inputLen/5) / (elapsedSeconds/60)), where
// inputLen counts characters. A zero or negative duration yields 0 instead
// of dividing by zero.
func ComputeWPM(inputLen, elapsedSeconds int) int {
	if elapsedSeconds <= 0 || inputLen <= 0 {
		return 0
	}
	minutes := float64(elapsedSeconds) / 60
	return int(math.Round(float64(inputLen) / charsPerWord / minutes))
}

// ComputeAccuracy returns the percentage (0..100) of target characters that
// typed matches at the same position. Positions past the end of typed count
// as wrong and extra typed characters are ignored. An empty target yields 0.
func ComputeAccuracy(target, typed string) int {
	want, got := []rune(target), []rune(typed)
	if len(want) == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < len(want) && i < len(got); i++ {
		if got[i] == want[i] {
			correct++
		}
	}
	return int(math.Round(100 * float64(correct) / float64(len(want))))
}
