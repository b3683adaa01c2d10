// Package units provides shared constants and validation for distance units
package units

// Unit constants
const (
	MM = "mm"
	CM = "cm"
	M  = "m"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MM, CM, M}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mm, cm, m"
}

// ConvertDistance converts a distance from millimetres to the target units.
// The sensor and database report distances in mm.
func ConvertDistance(distanceMM float64, targetUnits string) float64 {
	switch targetUnits {
	case CM:
		return distanceMM / 10
	case M:
		return distanceMM / 1000
	case MM:
		return distanceMM
	default:
		return distanceMM // default to mm if unknown unit
	}
}
