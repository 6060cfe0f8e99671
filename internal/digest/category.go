package digest

import (
	"strings"

	"horse.fit/pulse/internal/feed"
)

// Category is the topical bucket used by the diversity filter.
type Category string

const (
	CategorySystems  Category = "systems"
	CategoryVision   Category = "vision"
	CategoryAudio    Category = "audio"
	CategoryLanguage Category = "language"
	CategoryGeneral  Category = "general"
)

// categoryOrder fixes the priority in which keyword buckets are
// checked, so a single item always maps to exactly one category.
var categoryOrder = []Category{CategorySystems, CategoryVision, CategoryAudio, CategoryLanguage}

var categoryKeywords = map[Category][]string{
	CategorySystems: {
		"inference", "quantization", "cuda", "gpu", "kernel", "compiler",
		"serving", "runtime", "distributed", "kubernetes", "throughput",
		"latency", "vllm", "llama.cpp", "infra",
	},
	CategoryVision: {
		"image", "vision", "diffusion", "video", "segmentation", "detection",
		"ocr", "multimodal", "stable diffusion", "text-to-image", "rendering",
	},
	CategoryAudio: {
		"audio", "speech", "voice", "music", "whisper", "text-to-speech",
		"tts", "transcription", "sound",
	},
	CategoryLanguage: {
		"llm", "language model", "chat", "gpt", "transformer", "token",
		"prompt", "rag", "agent", "embedding", "fine-tun", "instruct",
	},
}

// Classify maps a cluster's main item to one category by keyword
// presence in title, description, and summary, checked in fixed
// priority order. Items matching nothing land in general.
func Classify(item feed.Item) Category {
	haystack := strings.ToLower(item.Title + " " + item.Description + " " + item.Summary)

	for _, category := range categoryOrder {
		for _, keyword := range categoryKeywords[category] {
			if strings.Contains(haystack, keyword) {
				return category
			}
		}
	}
	return CategoryGeneral
}
