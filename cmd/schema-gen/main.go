// Schema Generator
//
// Generates JSON Schema files for the queue service request and response
// types so technology workers and the next stage can validate payloads.
//
// Usage:
//
//	go run ./cmd/schema-gen -out ./schemas
//
// Output:
//
//	schemas/queue.json
//	schemas/callbacks.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/digitalservices/queue-service/internal/dispatch"
	"github.com/digitalservices/queue-service/internal/handlers"
	"github.com/digitalservices/queue-service/internal/queue"
)

// SchemaGroup represents a group of related schemas
type SchemaGroup struct {
	Name   string
	Types  []any
	Output string
}

func main() {
	outputDir := flag.String("out", "./schemas", "output directory")
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	groups := []SchemaGroup{
		{
			Name: "queue",
			Types: []any{
				handlers.EnqueueRequest{},
				handlers.EnqueueResponse{},
				queue.AdditionalData{},
				queue.Entry{},
				dispatch.BatchResult{},
			},
			Output: "queue.json",
		},
		{
			Name: "callbacks",
			Types: []any{
				handlers.UpdateQueueStatusRequest{},
				handlers.UpdateProcessRequest{},
				handlers.UpdateProcessMessageRequest{},
				handlers.SaveProcessDetailRequest{},
				handlers.UpdateProcessStatusRequest{},
				handlers.UpdateProcessStatusResultsRequest{},
				handlers.UpdateProcessQueueRequest{},
				handlers.ReprocessQueueRequest{},
				handlers.UpdateProcessingTechnologyRequest{},
				handlers.UpdateProcessDataPathRequest{},
				handlers.ReprocessTicketRequest{},
				handlers.UpdateResponse{},
				handlers.EstimateResponse{},
			},
			Output: "callbacks.json",
		},
	}

	for _, group := range groups {
		schema := generateGroupSchema(group)
		outputPath := filepath.Join(*outputDir, group.Output)

		if err := writeSchema(schema, outputPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", group.Output, err)
			os.Exit(1)
		}

		fmt.Printf("Generated %s\n", outputPath)
	}
}

// generateGroupSchema creates a combined schema with all types in a group
func generateGroupSchema(group SchemaGroup) map[string]any {
	reflector := &jsonschema.Reflector{}

	definitions := make(map[string]any)
	for _, t := range group.Types {
		schema := reflector.Reflect(t)
		for name, def := range schema.Definitions {
			definitions[name] = def
		}
	}

	return map[string]any{
		"$schema":     "https://json-schema.org/draft/2020-12/schema",
		"$id":         fmt.Sprintf("https://queue-service.local/schemas/%s.json", group.Name),
		"title":       fmt.Sprintf("%s API Types", cases.Title(language.Und).String(group.Name)),
		"description": fmt.Sprintf("JSON Schema for %s API types generated from Go structs", group.Name),
		"$defs":       definitions,
	}
}

// writeSchema writes a schema to a JSON file
func writeSchema(schema map[string]any, path string) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}
