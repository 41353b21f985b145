package mapping

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapdoc/internal/dataset"
	"github.com/leapstack-labs/leapdoc/internal/genai"
	"github.com/leapstack-labs/leapdoc/internal/testutil"
	"github.com/leapstack-labs/leapdoc/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type suggesterFunc func(ctx context.Context, fields, columns []string) (map[string]string, error)

func (f suggesterFunc) Suggest(ctx context.Context, fields, columns []string) (map[string]string, error) {
	return f(ctx, fields, columns)
}

func TestResolver_SuggestDegradesOnError(t *testing.T) {
	r := NewResolver(suggesterFunc(func(context.Context, []string, []string) (map[string]string, error) {
		return nil, core.ErrServiceTransient
	}), testutil.NewTestLogger(t))

	m := r.Suggest(context.Background(), []string{"Nome", "Email"}, []string{"Nome", "Email"})
	require.NotNil(t, m)
	assert.Equal(t, []string{"Nome", "Email"}, m.Unmapped())
	assert.False(t, m.Confirmed())
}

func TestResolver_SuggestFiltersUnknown(t *testing.T) {
	r := NewResolver(suggesterFunc(func(context.Context, []string, []string) (map[string]string, error) {
		return map[string]string{
			"Nome":    "nome_completo",
			"Email":   "sem_coluna",
			"Inexist": "nome_completo",
			"Cidade":  "",
		}, nil
	}), nil)

	m := r.Suggest(context.Background(), []string{"Nome", "Email", "Cidade"}, []string{"nome_completo", "email"})
	col, ok := m.Column("Nome")
	assert.True(t, ok)
	assert.Equal(t, "nome_completo", col)
	assert.Equal(t, []string{"Email", "Cidade"}, m.Unmapped())
	assert.False(t, m.Has("Inexist"))
}

func TestResolver_Confirm(t *testing.T) {
	columns := []string{"Nome", "Email"}
	r := NewResolver(nil, nil)

	t.Run("strict rejects unmapped", func(t *testing.T) {
		m := FromTable([]string{"Nome", "Email", "CPF"}, map[string]string{"Nome": "Nome", "Email": "Email"})
		_, err := r.Confirm(m, columns, PolicyStrict)
		require.ErrorIs(t, err, core.ErrMappingIncomplete)
		assert.Contains(t, err.Error(), "CPF")
	})

	t.Run("permissive allows unmapped", func(t *testing.T) {
		m := FromTable([]string{"Nome", "CPF"}, map[string]string{"Nome": "Nome"})
		got, err := r.Confirm(m, columns, PolicyPermissive)
		require.NoError(t, err)
		assert.True(t, got.Confirmed())
		assert.False(t, m.Confirmed(), "input is not modified")
	})

	t.Run("unknown column", func(t *testing.T) {
		m := FromTable([]string{"Nome"}, map[string]string{"Nome": "Name"})
		_, err := r.Confirm(m, columns, PolicyPermissive)
		assert.ErrorIs(t, err, core.ErrUnknownColumn)
	})

	t.Run("nil mapping", func(t *testing.T) {
		_, err := r.Confirm(nil, columns, PolicyStrict)
		assert.ErrorIs(t, err, core.ErrMappingIncomplete)
	})
}

func TestMapping_FieldsForColumnIsInverse(t *testing.T) {
	m := FromTable(
		[]string{"Nome", "NomeCompleto", "Email", "Obs"},
		map[string]string{"Nome": "nome", "NomeCompleto": "nome", "Email": "email"},
	)
	assert.Nil(t, m.FieldsForColumn("nome"), "no index before confirmation")

	c, err := NewResolver(nil, nil).Confirm(m, []string{"nome", "email"}, PolicyPermissive)
	require.NoError(t, err)

	for _, col := range []string{"nome", "email"} {
		for _, f := range c.FieldsForColumn(col) {
			got, ok := c.Column(f)
			require.True(t, ok)
			assert.Equal(t, col, got)
		}
	}
	for _, f := range c.Fields() {
		if col, ok := c.Column(f); ok {
			assert.Contains(t, c.FieldsForColumn(col), f)
		}
	}
	assert.Equal(t, []string{"Nome", "NomeCompleto"}, c.FieldsForColumn("nome"))
	assert.Empty(t, c.FieldsForColumn("missing"))

	require.NoError(t, c.Set("Obs", "email"))
	assert.False(t, c.Confirmed(), "editing drops confirmation")
	assert.Nil(t, c.FieldsForColumn("email"))
}

func TestMapping_Values(t *testing.T) {
	row := dataset.NewRow(0, []string{"Nome", "Email"}, []string{"Ana", "a@x.com"})
	m := FromTable([]string{"Nome", "Email", "CPF"}, map[string]string{"Nome": "Nome", "Email": "Email"})

	assert.Equal(t, map[string]string{"Nome": "Ana", "Email": "a@x.com", "CPF": ""}, m.Values(row))
	assert.Error(t, m.Set("Inexist", "Nome"))
}

func TestIdentity(t *testing.T) {
	m := Identity([]string{"Nome", "Email"})
	assert.True(t, m.Confirmed())
	assert.Equal(t, []string{"Email"}, m.FieldsForColumn("Email"))
	assert.Empty(t, m.Unmapped())
}

func TestHeuristicSuggester(t *testing.T) {
	got, err := HeuristicSuggester{}.Suggest(context.Background(),
		[]string{"Nome", "E-mail", "Endereço", "CPF"},
		[]string{"nome", "email", "endereco", "telefone"},
	)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Nome":     "nome",
		"E-mail":   "email",
		"Endereço": "endereco",
	}, got)
}

func TestHeuristicSuggester_ColumnClaimedOnce(t *testing.T) {
	got, err := HeuristicSuggester{}.Suggest(context.Background(),
		[]string{"Nomes", "Nome"},
		[]string{"Nome"},
	)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Nome": "Nome"}, got, "exact match wins the column")
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, similarity("", ""), 0.0001)
	assert.InDelta(t, 1.0, similarity("nome", "nome"), 0.0001)
	assert.InDelta(t, 0.75, similarity("nome", "nomx"), 0.0001)
	assert.Equal(t, "endereco", normalizeName("Endereço "))
}

func TestServiceSuggester(t *testing.T) {
	var captured genai.Request
	gen := genai.GeneratorFunc(func(_ context.Context, req genai.Request) (*genai.Response, error) {
		captured = req
		return &genai.Response{Text: "```json\n{\"Nome\": \"nome\", \"Email\": null}\n```"}, nil
	})

	got, err := ServiceSuggester{Generator: gen}.Suggest(context.Background(), []string{"Nome", "Email"}, []string{"nome", "email"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Nome": "nome"}, got)
	require.NotNil(t, captured.Schema)
	assert.Contains(t, captured.Schema.Properties, "Email")
	assert.Contains(t, captured.Prompt, "- email")

	failing := genai.GeneratorFunc(func(context.Context, genai.Request) (*genai.Response, error) {
		return &genai.Response{Text: "não sei"}, nil
	})
	_, err = ServiceSuggester{Generator: failing}.Suggest(context.Background(), []string{"Nome"}, []string{"nome"})
	assert.True(t, errors.Is(err, core.ErrServiceTransient))
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	m, err := NewResolver(nil, nil).Confirm(
		FromTable([]string{"Nome", "Email"}, map[string]string{"Nome": "nome"}),
		[]string{"nome"}, PolicyPermissive,
	)
	require.NoError(t, err)
	require.NoError(t, Save(path, m))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Nome", "Email"}, loaded.Fields())
	assert.Equal(t, m.Table(), loaded.Table())
	assert.False(t, loaded.Confirmed())

	_, err = Unmarshal([]byte("version: 9\n"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("Permissive")
	require.NoError(t, err)
	assert.Equal(t, PolicyPermissive, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyStrict, p)

	_, err = ParsePolicy("loose")
	assert.Error(t, err)
}
