package tts

import (
	"fmt"
	"math"
)

// ConvertRateToPercent converts a multiplicative rate into the signed percent
// string the engine expects: 1.0 -> "+0%", 1.2 -> "+20%", 0.85 -> "-15%".
func ConvertRateToPercent(rate float64) string {
	if rate == 1.0 {
		return "+0%"
	}

	percent := int(math.Round((rate - 1.0) * 100))
	if percent > 0 {
		return fmt.Sprintf("+%d%%", percent)
	}

	return fmt.Sprintf("%d%%", percent)
}
