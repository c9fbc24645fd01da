package schemas

import (
	"encoding/json"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllSchemaFiles_ValidJSON(t *testing.T) {
	schemaFiles := []string{PostingEvent, PostingBatch}

	for _, schemaFile := range schemaFiles {
		t.Run(schemaFile, func(t *testing.T) {
			data, err := fs.ReadFile(FS, schemaFile)
			require.NoError(t, err, "should be able to read schema file")

			var v map[string]interface{}
			err = json.Unmarshal(data, &v)
			require.NoError(t, err, "schema file should be valid JSON: %s", schemaFile)
			assert.Equal(t, "object", v["type"])
			assert.Contains(t, v, "required")
		})
	}
}

func TestEmbeddedFilesAreListed(t *testing.T) {
	matches, err := fs.Glob(FS, "*.schema.json")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{PostingBatch, PostingEvent}, matches)
}
