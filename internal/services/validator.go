package services

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/taskcoin/backend/internal/models"
)

// Request body schemas, one per write endpoint.
const (
	SchemaCreateTask          = "create_task"
	SchemaUpdateTask          = "update_task"
	SchemaSubmitWork          = "submit_work"
	SchemaRequestWithdrawal   = "request_withdrawal"
	SchemaCreatePaymentIntent = "create_payment_intent"
	SchemaConfirmPayment      = "confirm_payment"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

// Schemas holds the built-in request schemas under schemas/.
var Schemas fs.FS = schemaFiles

type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles every schemas/*.json file in fsys. The schema name is
// the file name without its extension.
func NewValidator(fsys fs.FS) (*Validator, error) {
	entries, err := fs.ReadDir(fsys, "schemas")
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		p := path.Join("schemas", e.Name())
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", p, err)
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		if err := compiler.AddResource(schemaURL(name), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema %q: %w", name, err)
		}
		names = append(names, name)
	}

	schemas := make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		s, err := compiler.Compile(schemaURL(name))
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", name, err)
		}
		schemas[name] = s
	}
	return &Validator{schemas: schemas}, nil
}

func schemaURL(name string) string {
	return "https://taskcoin.dev/schemas/" + name + ".json"
}

// Validate rejects body unless it is JSON matching the named schema. Failures
// wrap models.ErrValidation.
func (v *Validator) Validate(name string, body []byte) error {
	schema, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("invalid JSON: %v: %w", err, models.ErrValidation)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	return nil
}
