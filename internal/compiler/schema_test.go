package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkeb/node4j/internal/model/modeltest"
)

func joinStatements(stmts []Statement) string {
	texts := make([]string, len(stmts))
	for i, s := range stmts {
		texts[i] = s.Text
	}
	return strings.Join(texts, "\n")
}

func TestCompileSchema(t *testing.T) {
	stmts := CompileSchema(modeltest.Kind("Person"))
	assertGolden(t, "schema_person", joinStatements(stmts))

	for _, s := range stmts {
		assert.Contains(t, s.Text, "IF NOT EXISTS")
		assert.Empty(t, s.Params)
	}
}

func TestCompileSchema_Idempotent(t *testing.T) {
	kind := modeltest.Kind("Token")
	first := CompileSchema(kind)
	second := CompileSchema(kind)

	require.Equal(t, first, second)
	assert.Equal(t, "CREATE INDEX `index_Token_ttl` IF NOT EXISTS FOR (n:`Token`) ON (n.`ttl`)", first[len(first)-1].Text)
}

func TestCompileSchema_Composite(t *testing.T) {
	kind := modeltest.Kind("Company")
	kind.Constraints = append(kind.Constraints, kind.Constraints[0])
	kind.Indexes = nil

	stmts := CompileSchema(kind)
	assert.Len(t, stmts, 2, "duplicate declarations collapse")
}
