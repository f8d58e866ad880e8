package picsart

import "github.com/me/creativeapis/internal/response"

// Success body schemas. A 2xx body that does not conform is reported as a
// decoding failure.
var (
	imageSchema = response.MustSchema("image", `{
		"type": "object",
		"required": ["data"],
		"properties": {
			"status": {"type": "string"},
			"data": {
				"type": "object",
				"required": ["url"],
				"properties": {
					"id": {"type": "string"},
					"url": {"type": "string", "minLength": 1}
				}
			}
		}
	}`)

	// ultraUpscale answers with a finished image or a transaction to poll.
	acceptedImageSchema = response.MustSchema("acceptedImage", `{
		"type": "object",
		"anyOf": [
			{"required": ["data"], "properties": {"data": {"type": "object", "required": ["url"]}}},
			{"required": ["transaction_id"], "properties": {"transaction_id": {"type": "string", "minLength": 1}}}
		]
	}`)

	pendingSchema = response.MustSchema("pending", `{
		"type": "object",
		"properties": {"status": {"type": "string"}}
	}`)

	effectsSchema = response.MustSchema("effects", `{
		"type": "object",
		"required": ["data"],
		"properties": {
			"data": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["name"],
					"properties": {"name": {"type": "string"}}
				}
			}
		}
	}`)

	previewsSchema = response.MustSchema("effectsPreviews", `{
		"type": "object",
		"required": ["data"],
		"properties": {
			"data": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["effect_name", "url"],
					"properties": {
						"id": {"type": "string"},
						"effect_name": {"type": "string"},
						"url": {"type": "string"}
					}
				}
			}
		}
	}`)

	balanceSchema = response.MustSchema("balance", `{
		"type": "object",
		"required": ["credits"],
		"properties": {"credits": {"type": "number"}}
	}`)

	inferenceSchema = response.MustSchema("inference", `{
		"type": "object",
		"required": ["inference_id"],
		"properties": {"inference_id": {"type": "string", "minLength": 1}}
	}`)

	inferenceStatusSchema = response.MustSchema("inferenceStatus", `{
		"type": "object",
		"required": ["status"],
		"properties": {
			"status": {"type": "string"},
			"data": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["url"],
					"properties": {"id": {"type": "string"}, "url": {"type": "string"}}
				}
			}
		}
	}`)
)
