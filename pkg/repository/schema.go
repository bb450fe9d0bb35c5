package repository

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"github.com/grapheneos/appstore/pkg/errors"
)

//go:embed schema/metadata.schema.json
var metadataSchema []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiledSchema, schemaErr = compiler.Compile(metadataSchema)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile schema: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// ValidateMetadata checks the structure of verified metadata JSON.
func ValidateMetadata(data []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors))
	for path, e := range result.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %v", path, e))
	}
	sort.Strings(msgs)
	return errors.Wrap(errors.ErrRepoSchema, strings.Join(msgs, "; "))
}
