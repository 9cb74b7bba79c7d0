package summarize

import (
	"strings"
	"time"

	"github.com/hsh0702/boardsum/utils"
)

// ConfigFromEnv assembles a Config from the process environment. Unset
// values fall back to DefaultConfig.
func ConfigFromEnv() Config {
	config := DefaultConfig()
	config.ApiKey = utils.GetEnvString("GEMINI_API_KEY", "")
	config.Debug = utils.GetEnvBool("GEMINI_DEBUG", false)

	models := utils.GetEnvString("GEMINI_MODELS", "gemini-2.0-flash,gemini-2.0-flash-lite,gemini-1.5-flash")
	for _, model := range strings.Split(models, ",") {
		if trimmed := strings.TrimSpace(model); trimmed != "" {
			config.ModelPriorities = append(config.ModelPriorities, trimmed)
		}
	}

	if seconds := utils.GetEnvInt("GEMINI_TIMEOUT_SECONDS", 0); seconds > 0 {
		config.Timeout = time.Duration(seconds) * time.Second
	}
	if seconds := utils.GetEnvInt("GEMINI_COOLDOWN_SECONDS", 0); seconds > 0 {
		config.Cooldown = time.Duration(seconds) * time.Second
	}
	if maxLen := utils.GetEnvInt("GEMINI_MAX_TEXT_LENGTH", 0); maxLen > 0 {
		config.MaxTextLength = maxLen
	}
	if limit := utils.GetEnvInt("GEMINI_IMAGE_LIMIT", 0); limit > 0 {
		config.ImageLimit = limit
	}
	if endpoint := utils.GetEnvString("GEMINI_ENDPOINT", ""); endpoint != "" {
		config.Endpoint = endpoint
	}
	return config
}
