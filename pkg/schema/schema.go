package schema

import (
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
)

func generateSchema[T any]() any {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return r.Reflect(v)
}

var (
	SceneListSchema   = generateSchema[SceneList]()
	ProfileSchema     = generateSchema[CharacterProfile]()
	ScenePromptSchema = generateSchema[ScenePrompt]()
)

func responseFormat(name, description string, schema any) openai.ChatCompletionNewParamsResponseFormatUnion {
	p := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        name,
		Description: openai.String(description),
		Schema:      schema,
		Strict:      openai.Bool(true),
	}
	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: p},
	}
}

func SceneListResponseFormat() openai.ChatCompletionNewParamsResponseFormatUnion {
	return responseFormat("scene_list", "Story split into ordered scenes", SceneListSchema)
}

func ProfileResponseFormat() openai.ChatCompletionNewParamsResponseFormatUnion {
	return responseFormat("character_profile", "Recurring characters and their visual descriptions", ProfileSchema)
}

func ScenePromptResponseFormat() openai.ChatCompletionNewParamsResponseFormatUnion {
	return responseFormat("scene_prompt", "Image generation prompt for one scene", ScenePromptSchema)
}
