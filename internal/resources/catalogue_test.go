package resources

import (
	"encoding/json"
	"math"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pneutrack/console/internal/fetch"
	"github.com/pneutrack/console/internal/rbac"
)

func TestCatalogueRoles(t *testing.T) {
	c := DefaultCatalogue()
	slugs := func(role rbac.Role) []string {
		var out []string
		for _, r := range c.ForRole(role) {
			out = append(out, r.Slug)
		}
		return out
	}
	assert.Equal(t, []string{"veiculos", "pneus", "motoristas", "ordens-servico", "estoque", "empresas"}, slugs(rbac.Transportador))
	assert.Equal(t, []string{"veiculos", "pneus"}, slugs(rbac.Motorista))
	assert.Equal(t, []string{"pneus", "estoque", "empresas"}, slugs(rbac.Revenda))
	assert.Equal(t, []string{"veiculos", "pneus", "ordens-servico"}, slugs(rbac.Borracharia))
	assert.Equal(t, []string{"pneus", "ordens-servico", "estoque"}, slugs(rbac.Recapagem))

	for _, r := range c.All() {
		assert.Len(t, r.Candidates, 2, r.Slug)
		assert.NotEmpty(t, r.Columns, r.Slug)
	}
	_, ok := c.Lookup("pneus")
	assert.True(t, ok)
	_, ok = c.Lookup("faturas")
	assert.False(t, ok)
}

func decode(t *testing.T, rows []fetch.Row) []map[string]any {
	t.Helper()
	out := make([]map[string]any, 0, len(rows))
	for _, raw := range rows {
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	return out
}

func TestGeneratorIsDeterministicAndPaged(t *testing.T) {
	tires, _ := DefaultCatalogue().Lookup("pneus")
	gen := tires.Generator()
	req := fetch.Request{Page: 2, PageSize: 25, Params: url.Values{}}

	first, second := gen(req), gen(req)
	assert.Equal(t, first.Items, second.Items)
	assert.Equal(t, 120, first.Count)
	require.Len(t, first.Items, 25)
	assert.Equal(t, "PN-00026", decode(t, first.Items)[0]["codigo"])

	last := gen(fetch.Request{Page: 5, PageSize: 25, Params: url.Values{}})
	assert.Len(t, last.Items, 20)
	beyond := gen(fetch.Request{Page: 9, PageSize: 25, Params: url.Values{}})
	assert.Empty(t, beyond.Items)
	assert.Equal(t, 120, beyond.Count)
}

func TestGeneratorHugePageIsEmpty(t *testing.T) {
	tires, _ := DefaultCatalogue().Lookup("pneus")
	gen := tires.Generator()

	var page fetch.Page
	require.NotPanics(t, func() {
		page = gen(fetch.Request{Page: math.MaxInt64, PageSize: 100, Params: url.Values{}})
	})
	assert.Empty(t, page.Items)
	assert.Equal(t, 120, page.Count)

	page = gen(fetch.Request{Page: math.MaxInt64 / 100, PageSize: 100, Params: url.Values{}})
	assert.Empty(t, page.Items)
}

func TestGeneratorSearchAndOrdering(t *testing.T) {
	tires, _ := DefaultCatalogue().Lookup("pneus")
	gen := tires.Generator()

	page := gen(fetch.Request{Page: 1, PageSize: 200, Params: url.Values{"search": {"michelin"}}})
	assert.Equal(t, 24, page.Count)
	for _, row := range decode(t, page.Items) {
		assert.Equal(t, "Michelin", row["marca"])
	}

	page = gen(fetch.Request{Page: 1, PageSize: 3, Params: url.Values{"ordering": {"-codigo"}}})
	assert.Equal(t, "PN-00120", decode(t, page.Items)[0]["codigo"])

	page = gen(fetch.Request{Page: 1, PageSize: 200, Params: url.Values{"ordering": {"sulco_mm"}}})
	rows := decode(t, page.Items)
	assert.Equal(t, float64(4), rows[0]["sulco_mm"])
	assert.Equal(t, float64(17), rows[len(rows)-1]["sulco_mm"])
}

func TestGeneratorWithoutPagination(t *testing.T) {
	companies, _ := DefaultCatalogue().Lookup("empresas")
	page := companies.Generator()(fetch.Request{Pagination: fetch.Pagination{Disabled: true}, Params: url.Values{}})
	assert.Len(t, page.Items, 18)
}
