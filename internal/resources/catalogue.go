// Package resources describes the console's list screens and serves them over
// the resilient fetcher.
package resources

import (
	"slices"

	"github.com/pneutrack/console/internal/rbac"
)

// Column is one field shown in a list table.
type Column struct {
	Key   string
	Label string
}

// Resource is one logical list of the console, reachable through equivalent
// current and legacy API endpoints.
type Resource struct {
	Slug            string
	Title           string
	Candidates      []string
	DefaultOrdering string
	Columns         []Column
	Roles           []rbac.Role

	total int
	row   func(i int) map[string]any
}

// VisibleTo reports whether role lists this resource.
func (r Resource) VisibleTo(role rbac.Role) bool {
	return slices.Contains(r.Roles, role)
}

// Catalogue holds the resources in display order.
type Catalogue struct {
	resources []Resource
}

// Lookup finds a resource by slug.
func (c *Catalogue) Lookup(slug string) (Resource, bool) {
	for _, r := range c.resources {
		if r.Slug == slug {
			return r, true
		}
	}
	return Resource{}, false
}

// ForRole lists the resources role may see.
func (c *Catalogue) ForRole(role rbac.Role) []Resource {
	var out []Resource
	for _, r := range c.resources {
		if r.VisibleTo(role) {
			out = append(out, r)
		}
	}
	return out
}

// All lists every resource.
func (c *Catalogue) All() []Resource {
	return slices.Clone(c.resources)
}

// DefaultCatalogue returns the console's six list screens.
func DefaultCatalogue() *Catalogue {
	all := []rbac.Role{rbac.Transportador, rbac.Motorista, rbac.Revenda, rbac.Borracharia, rbac.Recapagem}
	return &Catalogue{resources: []Resource{
		{
			Slug:            "veiculos",
			Title:           "Veículos",
			Candidates:      []string{"/api/v2/veiculos/", "/api/veiculos/"},
			DefaultOrdering: "placa",
			Columns:         []Column{{"placa", "Placa"}, {"modelo", "Modelo"}, {"eixos", "Eixos"}, {"status", "Status"}},
			Roles:           []rbac.Role{rbac.Transportador, rbac.Motorista, rbac.Borracharia},
			total:           36,
			row:             vehicleRow,
		},
		{
			Slug:            "pneus",
			Title:           "Pneus",
			Candidates:      []string{"/api/v2/pneus/", "/api/pneus/"},
			DefaultOrdering: "-criado_em",
			Columns:         []Column{{"codigo", "Código"}, {"marca", "Marca"}, {"medida", "Medida"}, {"sulco_mm", "Sulco (mm)"}, {"status", "Status"}},
			Roles:           all,
			total:           120,
			row:             tireRow,
		},
		{
			Slug:            "motoristas",
			Title:           "Motoristas",
			Candidates:      []string{"/api/v2/motoristas/", "/api/motoristas/"},
			DefaultOrdering: "nome",
			Columns:         []Column{{"nome", "Nome"}, {"cnh", "CNH"}, {"veiculo", "Veículo"}},
			Roles:           []rbac.Role{rbac.Transportador},
			total:           24,
			row:             driverRow,
		},
		{
			Slug:            "ordens-servico",
			Title:           "Ordens de serviço",
			Candidates:      []string{"/api/v2/ordens-servico/", "/api/manutencao/ordens/"},
			DefaultOrdering: "-aberta_em",
			Columns:         []Column{{"numero", "Número"}, {"tipo", "Tipo"}, {"veiculo", "Veículo"}, {"status", "Status"}},
			Roles:           []rbac.Role{rbac.Transportador, rbac.Borracharia, rbac.Recapagem},
			total:           58,
			row:             orderRow,
		},
		{
			Slug:            "estoque",
			Title:           "Estoque",
			Candidates:      []string{"/api/v2/estoque/", "/api/estoque/itens/"},
			DefaultOrdering: "produto",
			Columns:         []Column{{"produto", "Produto"}, {"quantidade", "Quantidade"}, {"local", "Local"}},
			Roles:           []rbac.Role{rbac.Transportador, rbac.Revenda, rbac.Recapagem},
			total:           45,
			row:             stockRow,
		},
		{
			Slug:            "empresas",
			Title:           "Empresas",
			Candidates:      []string{"/api/v2/empresas/", "/api/empresas/"},
			DefaultOrdering: "razao_social",
			Columns:         []Column{{"razao_social", "Razão social"}, {"cnpj", "CNPJ"}, {"cidade", "Cidade"}},
			Roles:           []rbac.Role{rbac.Transportador, rbac.Revenda},
			total:           18,
			row:             companyRow,
		},
	}}
}
