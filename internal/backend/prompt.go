package backend

import (
	"fmt"

	"github.com/haasonsaas/relay/internal/catalog"
)

// RenderPrompt renders a system/user pair into the token layout the local
// runtime expects for the given format. The system segment is omitted
// entirely when empty. Unknown formats fall back to GenericTurn.
func RenderPrompt(format catalog.PromptFormat, system, user string) string {
	switch format {
	case catalog.FormatChatMLv1:
		if system == "" {
			return fmt.Sprintf("<|im_start|>user\n%s<|im_end|>\n<|im_start|>assistant\n", user)
		}
		return fmt.Sprintf("<|im_start|>system\n%s<|im_end|>\n<|im_start|>user\n%s<|im_end|>\n<|im_start|>assistant\n", system, user)
	case catalog.FormatLlama3v1:
		if system == "" {
			return fmt.Sprintf("<|begin_of_text|><|start_header_id|>user<|end_header_id|>\n\n%s<|eot_id|><|start_header_id|>assistant<|end_header_id|>\n\n", user)
		}
		return fmt.Sprintf("<|begin_of_text|><|start_header_id|>system<|end_header_id|>\n\n%s<|eot_id|><|start_header_id|>user<|end_header_id|>\n\n%s<|eot_id|><|start_header_id|>assistant<|end_header_id|>\n\n", system, user)
	case catalog.FormatMistralInst:
		if system == "" {
			return fmt.Sprintf("<s>[INST] %s [/INST]", user)
		}
		return fmt.Sprintf("<s>[INST] %s\n\n%s [/INST]", system, user)
	default:
		if system == "" {
			return fmt.Sprintf("User: %s\nAssistant:", user)
		}
		return fmt.Sprintf("%s\n\nUser: %s\nAssistant:", system, user)
	}
}
