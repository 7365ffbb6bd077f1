package contracts

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/receipt.schema.json
var receiptSchemaJSON []byte

const receiptSchemaURL = "https://notary.schemas.local/receipt.schema.json"

var (
	receiptSchemaOnce sync.Once
	receiptSchema     *jsonschema.Schema
	receiptSchemaErr  error
)

func compiledReceiptSchema() (*jsonschema.Schema, error) {
	receiptSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		c.AssertFormat = true
		if err := c.AddResource(receiptSchemaURL, bytes.NewReader(receiptSchemaJSON)); err != nil {
			receiptSchemaErr = fmt.Errorf("contracts: receipt schema load failed: %w", err)
			return
		}
		receiptSchema, receiptSchemaErr = c.Compile(receiptSchemaURL)
	})
	return receiptSchema, receiptSchemaErr
}

// ValidateReceiptJSON checks a raw submission against the embedded
// receipt schema before any decoding happens. It screens shape only;
// semantic admission decisions belong to the validator.
func ValidateReceiptJSON(raw []byte) error {
	schema, err := compiledReceiptSchema()
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("contracts: receipt is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("contracts: receipt schema validation failed: %w", err)
	}
	return nil
}
