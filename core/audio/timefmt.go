package audio

import (
	"fmt"
	"math"
)

// FormatTime renders seconds as m:ss. Non-finite or negative input renders 0:00.
func FormatTime(sec float64) string {
	if math.IsNaN(sec) || math.IsInf(sec, 0) || sec < 0 {
		return "0:00"
	}
	m := int(sec / 60)
	s := int(math.Mod(sec, 60))
	return fmt.Sprintf("%d:%02d", m, s)
}
