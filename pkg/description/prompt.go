package description

import "github.com/menta2k/object-scanner/pkg/client"

// SystemPrompt is sent as the system instruction of every description call
const SystemPrompt = `You are an advanced AI object detection scanner.
Analyze the image and return a JSON object.
Be precise and output RAW JSON only.`

// DefaultPrompt asks the model to fill every field of the description record
const DefaultPrompt = `Analyze this image and fill in this JSON template:
{
    "label": "Short name",
    "color": "Dominant color",
    "description": "Short description of the item",
    "tags": ["tag1", "tag2"],
    "location_context": "Indoor/Outdoor/Desk",
    "sensitive": "Sensitive/Not sensitive"
}
Sensitive means the image contains a sexual item or private data such as a bank card with its Card Verification code.`

// RecordSchema is the structured output constraint for description records
func RecordSchema() *client.Schema {
	str := func() *client.Schema { return &client.Schema{Type: "string"} }
	return &client.Schema{
		Type: "object",
		Properties: map[string]*client.Schema{
			"label":            str(),
			"color":            str(),
			"description":      str(),
			"tags":             {Type: "array", Items: str()},
			"location_context": str(),
			"sensitive":        str(),
		},
		Required: []string{"label", "color", "description", "tags", "location_context", "sensitive"},
	}
}
