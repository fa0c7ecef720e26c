package config

import "fmt"

// Speed limits accepted for time-stretching. Values outside ffmpeg's single
// atempo range are chained by the audio source.
const (
	MinSpeed = 0.25
	MaxSpeed = 2.0
)

func (c *Config) validate() error {
	if c.DefaultSpeed < MinSpeed || c.DefaultSpeed > MaxSpeed {
		return fmt.Errorf("DEFAULT_SPEED %.2f out of range [%.2f, %.2f]", c.DefaultSpeed, MinSpeed, MaxSpeed)
	}
	if c.LessonWorkers < 1 {
		return fmt.Errorf("LESSON_WORKERS must be >= 1, got %d", c.LessonWorkers)
	}
	if c.LessonQueueSize < 1 {
		return fmt.Errorf("LESSON_QUEUE_SIZE must be >= 1, got %d", c.LessonQueueSize)
	}
	switch c.STTProvider {
	case "whisper":
		if c.WhisperURL == "" {
			return fmt.Errorf("STT_PROVIDER=whisper requires WHISPER_URL")
		}
	case "elevenlabs":
		if c.ElevenLabsAPIKey == "" {
			return fmt.Errorf("STT_PROVIDER=elevenlabs requires ELEVENLABS_API_KEY")
		}
	case "deepinfra":
		if c.DeepInfraAPIKey == "" {
			return fmt.Errorf("STT_PROVIDER=deepinfra requires DEEPINFRA_API_KEY")
		}
	default:
		return fmt.Errorf("unknown STT_PROVIDER %q (want whisper, elevenlabs or deepinfra)", c.STTProvider)
	}
	return nil
}
