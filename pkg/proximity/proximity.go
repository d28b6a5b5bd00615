package proximity

// Label returns a coarse proximity label for a closeness percentage (0-100).
func Label(closenessPct float64) string {
	switch {
	case closenessPct >= 75:
		return "muy cerca"
	case closenessPct >= 50:
		return "cerca"
	case closenessPct >= 25:
		return "en la zona"
	case closenessPct > 0:
		return "lejos"
	default:
		return ""
	}
}

// Closeness is (1 - distance/radius) * 100, clamped to [0, 100].
func Closeness(distanceKm, radiusKm float64) float64 {
	if radiusKm <= 0 || distanceKm >= radiusKm {
		return 0
	}
	p := (1 - distanceKm/radiusKm) * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
