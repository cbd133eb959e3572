// Package emission estimates the carbon cost of generated chat tokens.
//
// The numbers here are a fixed linear model, not a physically validated
// account: an assumed active-parameter count per model, a per-token energy
// figure, a datacenter PUE multiplier, and a grid carbon intensity.
package emission

import (
	"errors"
	"strings"
)

const (
	// kWh consumed per output token per billion active parameters.
	energyPerTokenPerBillionParams = 7.594e-9
	// Power usage effectiveness multiplier for datacenter overhead.
	pue = 1.2
	// Grid carbon intensity in kg CO2 per kWh.
	carbonIntensityKgPerKWh = 0.379

	// Assumed parameter count when the model is unknown.
	defaultParamsBillion = 500
)

var ErrInvalidInput = errors.New("emission: output tokens must be non-negative")

// Assumed active-parameter counts in billions. Keys are matched against the
// normalized model name by exact match first, then by prefix, so versioned
// names like "claude-3-haiku-20240307" resolve to their family entry.
var modelParamsBillion = map[string]float64{
	"gpt-3.5-turbo":   20,
	"gpt-4":           1100,
	"gpt-4o":          200,
	"gpt-4o-mini":     8,
	"gpt-5":           640,
	"chatgpt":         200,
	"o3":              300,
	"claude-3-haiku":  30,
	"claude-3-sonnet": 70,
	"claude-3-opus":   400,
	"claude":          180,
	"gemini-flash":    40,
	"gemini-pro":      175,
	"gemini":          175,
}

// EstimateGrams returns the estimated grams of CO2 emitted while generating
// outputTokens tokens with the named model. Unknown models fall back to a
// default parameter count. The only error condition is a negative token
// count.
func EstimateGrams(model string, outputTokens int) (float64, error) {
	if outputTokens < 0 {
		return 0, ErrInvalidInput
	}

	paramsB := lookupParams(model)
	energyKWh := energyPerTokenPerBillionParams * paramsB * float64(outputTokens) * pue
	return energyKWh * carbonIntensityKgPerKWh * 1000, nil
}

func lookupParams(model string) float64 {
	name := strings.ToLower(strings.TrimSpace(model))
	if p, ok := modelParamsBillion[name]; ok {
		return p
	}

	// Longest matching prefix wins so "claude-3-haiku-..." beats "claude".
	best := ""
	for key := range modelParamsBillion {
		if strings.HasPrefix(name, key) && len(key) > len(best) {
			best = key
		}
	}
	if best != "" {
		return modelParamsBillion[best]
	}

	return defaultParamsBillion
}
