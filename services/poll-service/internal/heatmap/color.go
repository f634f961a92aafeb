package heatmap

// Bucket thresholds are inclusive upper bounds: 0, 1-20, 21-40, 41-60, 61-80, 81-100.
var (
	lightPalette = [6]string{"#f3f4f6", "#dcfce7", "#bbf7d0", "#86efac", "#4ade80", "#16a34a"}
	darkPalette  = [6]string{"#1f2937", "#dcfce7", "#bbf7d0", "#86efac", "#4ade80", "#16a34a"}
	opacities    = [6]float64{0.3, 0.45, 0.6, 0.75, 0.9, 1}
)

// Bucket places percentage on the six-step availability scale.
func Bucket(percentage float64) int {
	switch {
	case percentage <= 0:
		return 0
	case percentage <= 20:
		return 1
	case percentage <= 40:
		return 2
	case percentage <= 60:
		return 3
	case percentage <= 80:
		return 4
	default:
		return 5
	}
}

// Color returns the cell fill for percentage. The empty bucket follows the theme and
// customColor, when set, replaces the top bucket.
func Color(percentage float64, dark bool, customColor string) string {
	b := Bucket(percentage)
	if b == 5 && customColor != "" {
		return customColor
	}
	if dark {
		return darkPalette[b]
	}
	return lightPalette[b]
}

func Opacity(percentage float64) float64 {
	return opacities[Bucket(percentage)]
}
