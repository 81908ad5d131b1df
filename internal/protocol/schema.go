package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func compileSchemas() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	names := map[string]string{
		TypeHello:   "hello.schema.json",
		TypeTileReq: "tile_request.schema.json",
	}
	for _, file := range names {
		b, err := schemaFS.ReadFile("schemas/" + file)
		if err != nil {
			schemasErr = err
			return
		}
		if err := c.AddResource(file, bytes.NewReader(b)); err != nil {
			schemasErr = fmt.Errorf("schema %s: %w", file, err)
			return
		}
	}
	out := map[string]*jsonschema.Schema{}
	for typ, file := range names {
		s, err := c.Compile(file)
		if err != nil {
			schemasErr = fmt.Errorf("compile %s: %w", file, err)
			return
		}
		out[typ] = s
	}
	schemas = out
}

// Validate checks a raw client message against the schema for msgType.
func Validate(msgType string, raw []byte) error {
	schemasOnce.Do(compileSchemas)
	if schemasErr != nil {
		return schemasErr
	}
	s := schemas[msgType]
	if s == nil {
		return fmt.Errorf("no schema for message type %q", msgType)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}

// DecodeTileReq validates raw and decodes it.
func DecodeTileReq(raw []byte) (TileReqMsg, error) {
	var m TileReqMsg
	if err := Validate(TypeTileReq, raw); err != nil {
		return m, err
	}
	err := json.Unmarshal(raw, &m)
	return m, err
}

func DecodeHello(raw []byte) (HelloMsg, error) {
	var m HelloMsg
	if err := Validate(TypeHello, raw); err != nil {
		return m, err
	}
	err := json.Unmarshal(raw, &m)
	return m, err
}
