package protocol

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema.json
var manifestSchemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// compiledSchema lazily compiles the embedded manifest JSON Schema once
// per process, mirroring the registry.Service pattern of compiling a
// jsonschema.Schema at startup and reusing it for every validation.
func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(manifestSchemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("protocol: parsing embedded schema: %w", err)
			return
		}
		const resourceURL = "https://ai-protocol-go/schema/manifest.json"
		if err := c.AddResource(resourceURL, doc); err != nil {
			schemaErr = fmt.Errorf("protocol: adding schema resource: %w", err)
			return
		}
		compiled, err := c.Compile(resourceURL)
		if err != nil {
			schemaErr = fmt.Errorf("protocol: compiling schema: %w", err)
			return
		}
		schema = compiled
	})
	return schema, schemaErr
}
