package cost

// Rates holds per-provider pricing configuration.
type Rates struct {
	Places PlacesRate `yaml:"places" mapstructure:"places"`
}

// PlacesRate holds Google Places Text Search pricing.
type PlacesRate struct {
	PerCall float64 `yaml:"per_call" mapstructure:"per_call"`
	// FreeCalls is the monthly call allowance billed at zero.
	FreeCalls int `yaml:"free_calls" mapstructure:"free_calls"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Places computes the cost for a number of Text Search calls, ignoring any
// free allowance.
func (c *Calculator) Places(calls int) float64 {
	if calls <= 0 {
		return 0
	}
	return float64(calls) * c.rates.Places.PerCall
}

// PlacesAfterAllowance computes the cost of calls made once usedThisMonth
// calls have already been spent against the free allowance.
func (c *Calculator) PlacesAfterAllowance(calls, usedThisMonth int) float64 {
	if calls <= 0 {
		return 0
	}
	remaining := c.rates.Places.FreeCalls - usedThisMonth
	if remaining < 0 {
		remaining = 0
	}
	billable := calls - remaining
	if billable <= 0 {
		return 0
	}
	return float64(billable) * c.rates.Places.PerCall
}

// PerCall returns the flat cost per Places call.
func (c *Calculator) PerCall() float64 {
	return c.rates.Places.PerCall
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Places: PlacesRate{PerCall: 0.032, FreeCalls: 0},
	}
}
