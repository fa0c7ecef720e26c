package transcribe

import (
	"fmt"

	"github.com/snarg/listenlab/internal/config"
)

// NewProvider builds the provider selected by STT_PROVIDER.
func NewProvider(cfg *config.Config) (Provider, error) {
	switch cfg.STTProvider {
	case "whisper":
		return NewWhisperClient(cfg.WhisperURL, cfg.WhisperModel, cfg.WhisperTimeout), nil
	case "elevenlabs":
		return NewElevenLabsClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsModel, cfg.WhisperTimeout), nil
	case "deepinfra":
		return NewDeepInfraClient(cfg.DeepInfraAPIKey, cfg.DeepInfraModel, cfg.WhisperTimeout), nil
	}
	return nil, fmt.Errorf("unknown stt provider %q", cfg.STTProvider)
}
