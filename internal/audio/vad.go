package audio

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold for speech detection
	SilenceFrames   int     // Number of consecutive silence frames to mark as end of speech
}

// DefaultVADConfig returns a default VAD configuration
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   25, // 500ms of 20ms frames
	}
}

// VADResult is the detector's verdict on one frame
type VADResult struct {
	Speaking bool
	Started  bool
	Ended    bool
	Energy   float64
}

// VADDetector performs energy-based Voice Activity Detection. It is not safe for
// concurrent use; each listening session owns its own detector.
type VADDetector struct {
	config         *VADConfig
	silenceCounter int
	isSpeaking     bool
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	return &VADDetector{config: config}
}

// Process runs detection on a captured frame
func (v *VADDetector) Process(frame Frame) VADResult {
	return v.ProcessSamples(frame.Samples())
}

// ProcessSamples runs detection on decoded samples
func (v *VADDetector) ProcessSamples(samples []int16) VADResult {
	result := VADResult{Energy: CalculateRMS(samples)}

	if result.Energy > v.config.EnergyThreshold {
		v.silenceCounter = 0
		if !v.isSpeaking {
			result.Started = true
			v.isSpeaking = true
		}
	} else {
		v.silenceCounter++
		if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
			result.Ended = true
			v.isSpeaking = false
			v.silenceCounter = 0
		}
	}

	result.Speaking = v.isSpeaking
	return result
}
