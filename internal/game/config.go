package game

import "time"

// Server-side clamps for client-supplied tunables.
const (
	minDuration = 300 * time.Second
	maxDuration = 7200 * time.Second

	minHeatThreshold = 3
	maxHeatThreshold = 20

	minDifficulty = 800
	maxDifficulty = 3500

	defaultDifficulty    = 800
	defaultHeatThreshold = 7
	defaultDuration      = 45 * time.Minute
	defaultMaxVetoes     = 3
)

// Veto strictness tiers: escalating penalties for the first, second and
// third veto.
var vetoTiers = map[string][3]time.Duration{
	"low":    {300 * time.Second, 420 * time.Second, 600 * time.Second},
	"medium": {420 * time.Second, 600 * time.Second, 900 * time.Second},
	"high":   {600 * time.Second, 900 * time.Second, 1200 * time.Second},
}

type Config struct {
	Difficulty    int
	HeatThreshold int
	MaxVetoes     int
	VetoPenalties [3]time.Duration
	Duration      time.Duration
}

func DefaultConfig() Config {
	return Config{
		Difficulty:    defaultDifficulty,
		HeatThreshold: defaultHeatThreshold,
		MaxVetoes:     defaultMaxVetoes,
		VetoPenalties: vetoTiers["medium"],
		Duration:      defaultDuration,
	}
}

// BuildConfig turns raw creation-request tunables into a safe Config.
// Zero values select defaults; everything else is clamped. Unknown
// strictness names fall back to medium.
func BuildConfig(difficulty, heatThreshold, durationMins int, strictness string) Config {
	cfg := DefaultConfig()
	if difficulty != 0 {
		cfg.Difficulty = clampInt(difficulty, minDifficulty, maxDifficulty)
	}
	if heatThreshold != 0 {
		cfg.HeatThreshold = clampInt(heatThreshold, minHeatThreshold, maxHeatThreshold)
	}
	if durationMins != 0 {
		cfg.Duration = clampDuration(time.Duration(durationMins)*time.Minute, minDuration, maxDuration)
	}
	if tier, ok := vetoTiers[strictness]; ok {
		cfg.VetoPenalties = tier
	}
	return cfg
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
