// Command schema-generator writes schema/envmirror.schema.json: the base
// configuration schema with the logging extension section composed in.
package main

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"

	"github.com/grovetools/envmirror/config"
	"github.com/grovetools/envmirror/logging"
	"github.com/invopop/jsonschema"
)

func main() {
	baseBytes, err := config.GenerateSchema()
	if err != nil {
		log.Fatalf("Error generating schema: %v", err)
	}
	var schema map[string]interface{}
	if err := json.Unmarshal(baseBytes, &schema); err != nil {
		log.Fatalf("Error parsing base schema: %v", err)
	}

	r := &jsonschema.Reflector{
		AllowAdditionalProperties:  true,
		ExpandedStruct:             true,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
		FieldNameTag:               "yaml",
	}
	loggingSchema := r.Reflect(&logging.Config{})
	loggingSchema.Version = ""
	loggingSchema.Description = "Logging configuration"

	loggingBytes, err := json.Marshal(loggingSchema)
	if err != nil {
		log.Fatalf("Error marshaling logging schema: %v", err)
	}
	var loggingSection map[string]interface{}
	if err := json.Unmarshal(loggingBytes, &loggingSection); err != nil {
		log.Fatalf("Error parsing logging schema: %v", err)
	}

	properties, ok := schema["properties"].(map[string]interface{})
	if !ok {
		properties = make(map[string]interface{})
		schema["properties"] = properties
	}
	properties["logging"] = loggingSection

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		log.Fatalf("Error marshaling schema: %v", err)
	}

	outputPath := filepath.Join("schema", "envmirror.schema.json")
	if err := os.WriteFile(outputPath, append(data, '\n'), 0644); err != nil {
		log.Fatalf("Error writing schema file: %v", err)
	}

	log.Printf("Successfully generated schema at %s", outputPath)
}
