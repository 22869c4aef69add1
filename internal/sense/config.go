package sense

import "time"

// ChannelConfig tunes one sense of one agent.
type ChannelConfig struct {
	Range       float64       // detection range in world units
	FOVDegrees  float64       // vision only, full cone angle
	Sensitivity float64       // multiplier on computed confidence
	NoiseFloor  float64       // stimuli below this intensity are dropped
	Interval    time.Duration // how often this sense runs
}

// Config carries per-sense tuning plus the memory parameters.
type Config struct {
	Enabled SenseSet
	Vision  ChannelConfig
	Hearing ChannelConfig
	Smell   ChannelConfig

	// HearingAttenuation is k in intensity/(1+k*d^2).
	HearingAttenuation float64
	HearingThreshold   float64
	SmellThreshold     float64

	// EyeHeight offsets the vision ray origin above the agent position.
	EyeHeight float64

	MemoryCapacity  int
	MemoryHalfLife  time.Duration
	ForgetThreshold float64
	HistoryCap      int
}

// DefaultConfig is a reasonable land-mob profile.
func DefaultConfig() Config {
	return Config{
		Enabled: AllSenses,
		Vision: ChannelConfig{
			Range:       24,
			FOVDegrees:  120,
			Sensitivity: 1,
			NoiseFloor:  0.05,
			Interval:    200 * time.Millisecond,
		},
		Hearing: ChannelConfig{
			Range:       32,
			Sensitivity: 1,
			NoiseFloor:  0.02,
			Interval:    250 * time.Millisecond,
		},
		Smell: ChannelConfig{
			Range:       16,
			Sensitivity: 1,
			NoiseFloor:  0.02,
			Interval:    500 * time.Millisecond,
		},
		HearingAttenuation: 0.02,
		HearingThreshold:   0.05,
		SmellThreshold:     0.05,
		EyeHeight:          1.6,
		MemoryCapacity:     32,
		MemoryHalfLife:     30 * time.Second,
		ForgetThreshold:    0.05,
		HistoryCap:         8,
	}
}

// channel returns the config for a sense, nil for channels without
// per-channel tuning.
func (c *Config) channel(s Sense) *ChannelConfig {
	switch s {
	case SenseVision:
		return &c.Vision
	case SenseHearing:
		return &c.Hearing
	case SenseSmell:
		return &c.Smell
	default:
		return nil
	}
}
