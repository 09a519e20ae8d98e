package cache

import "time"

// DataClass selects the TTL policy for a cached value. The policy is a pure
// function of the data class; the cache itself never inspects what it
// stores.
type DataClass string

const (
	ClassOHLCV                DataClass = "ohlcv"
	ClassPrice                DataClass = "price"
	ClassFundamentals         DataClass = "fundamentals"
	ClassComplianceVerified   DataClass = "compliance_verified"
	ClassComplianceUnverified DataClass = "compliance_unverified"
	ClassUniverseVolatile     DataClass = "universe_volatile"
	ClassUniverseStatic       DataClass = "universe_static"
)

// TTLFor maps a data class to its time-to-live. Verified compliance verdicts
// are long-lived; unverified ones expire quickly so tickers get rechecked.
func TTLFor(class DataClass) time.Duration {
	switch class {
	case ClassOHLCV:
		return time.Hour
	case ClassPrice:
		return 15 * time.Minute
	case ClassFundamentals:
		return 24 * time.Hour
	case ClassComplianceVerified:
		return 30 * 24 * time.Hour
	case ClassComplianceUnverified:
		return 7 * 24 * time.Hour
	case ClassUniverseVolatile:
		return 7 * 24 * time.Hour
	case ClassUniverseStatic:
		return 30 * 24 * time.Hour
	default:
		return 15 * time.Minute
	}
}
