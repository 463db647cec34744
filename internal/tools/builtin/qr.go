package builtin

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/haasonsaas/relay/internal/tools"
	"github.com/haasonsaas/relay/pkg/models"
)

const defaultQRSize = 256

// QRGenerateTool renders QR codes for text, URLs, and wifi credentials.
// The result carries both the encoded payload string and the PNG image,
// base64 encoded for transport through the chat layer.
type QRGenerateTool struct{}

// NewQRGenerateTool builds the QR tool.
func NewQRGenerateTool() *QRGenerateTool { return &QRGenerateTool{} }

func (t *QRGenerateTool) Manifest() tools.Manifest {
	var minSize, maxSize float64 = 64, 1024
	return tools.Manifest{
		Name:        "qr_generate",
		Description: "Render a QR code PNG for plain text, a URL, or wifi credentials.",
		Category:    tools.CategoryUtility,
		Trust:       tools.TrustCore,
		Scopes:      []tools.SecurityScope{tools.ScopeReadOnly},
		Profile:     tools.ProfileCPULight,
		Parameters: []tools.ParameterSpec{
			{
				Name:       "qr_type",
				Type:       tools.TypeEnum,
				EnumValues: []string{"text", "url", "wifi"},
				Default:    "text",
			},
			{
				Name:        "content",
				Type:        tools.TypeString,
				Description: "Text body or URL. Ignored for wifi payloads.",
			},
			{
				Name:        "ssid",
				Type:        tools.TypeString,
				Description: "Network name. Required when qr_type is wifi.",
			},
			{
				Name:        "password",
				Type:        tools.TypeString,
				Description: "Network password. Empty means an open network.",
			},
			{
				Name:       "security",
				Type:       tools.TypeEnum,
				EnumValues: []string{"WPA", "WEP", "nopass"},
				Default:    "WPA",
			},
			{
				Name:        "hidden",
				Type:        tools.TypeBool,
				Default:     false,
				Description: "Whether the wifi network is hidden.",
			},
			{
				Name:        "size",
				Type:        tools.TypeInteger,
				Default:     defaultQRSize,
				Min:         &minSize,
				Max:         &maxSize,
				Description: "Image edge length in pixels.",
			},
		},
	}
}

// CheckParams enforces the rules the flat schema cannot express: wifi
// payloads need an ssid, the other types need content.
func (t *QRGenerateTool) CheckParams(params map[string]any) error {
	qrType, _ := params["qr_type"].(string)
	switch qrType {
	case "wifi":
		if ssid, _ := params["ssid"].(string); strings.TrimSpace(ssid) == "" {
			return fmt.Errorf(`parameter "ssid" is required when qr_type is wifi`)
		}
	default:
		if content, _ := params["content"].(string); strings.TrimSpace(content) == "" {
			return fmt.Errorf(`parameter "content" is required when qr_type is %s`, qrType)
		}
	}
	return nil
}

func (t *QRGenerateTool) Execute(_ context.Context, params map[string]any) *models.ToolResult {
	qrType, _ := params["qr_type"].(string)

	var payload string
	switch qrType {
	case "wifi":
		ssid, _ := params["ssid"].(string)
		password, _ := params["password"].(string)
		security, _ := params["security"].(string)
		hidden, _ := params["hidden"].(bool)
		if password == "" {
			security = "nopass"
		}
		payload = fmt.Sprintf("WIFI:T:%s;S:%s;P:%s;H:%t;;",
			security, escapeWifiField(ssid), escapeWifiField(password), hidden)

	case "url":
		content, _ := params["content"].(string)
		u, err := url.Parse(strings.TrimSpace(content))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return models.ToolFailure(models.KindToolExecution,
				"content must be an absolute http or https URL")
		}
		payload = u.String()

	default:
		content, _ := params["content"].(string)
		payload = content
	}

	png, err := qrcode.Encode(payload, qrcode.Medium, imageSize(params))
	if err != nil {
		return models.ToolFailure(models.KindToolExecution,
			fmt.Sprintf("encode qr code: %v", err))
	}

	return models.ToolSuccess(map[string]any{
		"qr_type":    qrType,
		"payload":    payload,
		"png_base64": base64.StdEncoding.EncodeToString(png),
	})
}

// imageSize reads the size parameter, tolerating the json (float64) and
// yaml (int) number shapes.
func imageSize(params map[string]any) int {
	switch v := params["size"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultQRSize
	}
}

// escapeWifiField escapes the reserved characters of the WIFI: scheme.
func escapeWifiField(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `;`, `\;`, `,`, `\,`, `:`, `\:`, `"`, `\"`)
	return r.Replace(s)
}
