package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/invopop/jsonschema"

	"hexhold/server/internal/net/proto"
)

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	if err := writeSchema(outPath, buildSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

// protocolSchema groups the inbound message schema with one schema per
// outbound message, keyed by Go type name.
type protocolSchema struct {
	Version int                           `json:"version"`
	Client  *jsonschema.Schema            `json:"client"`
	Server  map[string]*jsonschema.Schema `json:"server"`
}

func buildSchema() protocolSchema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}

	client := reflector.Reflect(new(proto.ClientMessage))
	client.Title = "Hexhold client message"
	client.Description = "Websocket payload sent by clients to /ws"

	server := make(map[string]*jsonschema.Schema)
	for _, msg := range proto.ServerMessages() {
		name := reflect.TypeOf(msg).Name()
		schema := reflector.Reflect(msg)
		schema.Title = "Hexhold " + name
		server[name] = schema
	}

	return protocolSchema{Version: proto.Version, Client: client, Server: server}
}

func writeSchema(outPath string, schema protocolSchema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
