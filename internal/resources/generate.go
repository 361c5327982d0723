package resources

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pneutrack/console/internal/fetch"
)

var (
	brands   = []string{"Michelin", "Pirelli", "Bridgestone", "Goodyear", "Continental"}
	sizes    = []string{"295/80R22.5", "275/80R22.5", "215/75R17.5"}
	models   = []string{"Volvo FH 540", "Scania R450", "Mercedes Actros 2651", "DAF XF 530"}
	cities   = []string{"Curitiba", "Campinas", "Joinville", "Londrina", "Goiânia"}
	tireStat = []string{"em uso", "estoque", "recapagem", "descarte"}
)

// Generator returns the placeholder rows served when none of the resource's
// endpoints answers. Rows are deterministic, honour search and ordering, and
// are paged like the real API.
func (r Resource) Generator() fetch.Generator {
	return func(req fetch.Request) fetch.Page {
		rows := make([]map[string]any, 0, r.total)
		search := strings.ToLower(strings.TrimSpace(req.Params.Get("search")))
		for i := 1; i <= r.total; i++ {
			row := r.row(i)
			if search != "" && !matches(row, search) {
				continue
			}
			rows = append(rows, row)
		}
		sortRows(rows, req.Params.Get("ordering"))

		page, size := req.Page, req.PageSize
		if page < 1 {
			page = 1
		}
		if size < 1 || req.Pagination.Disabled {
			size = len(rows)
			page = 1
		}
		start := len(rows)
		if page-1 < (len(rows)+size-1)/size {
			start = (page - 1) * size
		}
		end := min(start+size, len(rows))

		items := make([]fetch.Row, 0, end-start)
		for _, row := range rows[start:end] {
			raw, err := json.Marshal(row)
			if err != nil {
				continue
			}
			items = append(items, raw)
		}
		return fetch.Page{Shape: fetch.ShapeEnvelope, Items: items, Count: len(rows)}
	}
}

func matches(row map[string]any, needle string) bool {
	for _, v := range row {
		if strings.Contains(strings.ToLower(fmt.Sprint(v)), needle) {
			return true
		}
	}
	return false
}

func sortRows(rows []map[string]any, ordering string) {
	key := strings.TrimSpace(ordering)
	if key == "" {
		return
	}
	desc := strings.HasPrefix(key, "-")
	key = strings.TrimPrefix(key, "-")
	sort.SliceStable(rows, func(i, j int) bool {
		c := compare(rows[i][key], rows[j][key])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func compare(a, b any) int {
	if x, ok := a.(int); ok {
		if y, ok := b.(int); ok {
			return x - y
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func vehicleRow(i int) map[string]any {
	return map[string]any{
		"id":     i,
		"placa":  fmt.Sprintf("SIM%d%c%02d", i%10, 'A'+rune(i%26), i%100),
		"modelo": models[i%len(models)],
		"eixos":  3 + i%4,
		"status": []string{"ativo", "manutenção"}[i%2],
	}
}

func tireRow(i int) map[string]any {
	return map[string]any{
		"id":       i,
		"codigo":   fmt.Sprintf("PN-%05d", i),
		"marca":    brands[i%len(brands)],
		"medida":   sizes[i%len(sizes)],
		"sulco_mm": 4 + i%14,
		"status":   tireStat[i%len(tireStat)],
	}
}

func driverRow(i int) map[string]any {
	return map[string]any{
		"id":      i,
		"nome":    fmt.Sprintf("Motorista %02d", i),
		"cnh":     fmt.Sprintf("%011d", 10000000000+i*7919),
		"veiculo": vehicleRow(i)["placa"],
	}
}

func orderRow(i int) map[string]any {
	return map[string]any{
		"id":      i,
		"numero":  fmt.Sprintf("OS-%04d", 1000+i),
		"tipo":    []string{"rodízio", "calibragem", "recapagem", "troca"}[i%4],
		"veiculo": vehicleRow(i%36 + 1)["placa"],
		"status":  []string{"aberta", "em andamento", "concluída"}[i%3],
	}
}

func stockRow(i int) map[string]any {
	return map[string]any{
		"id":         i,
		"produto":    fmt.Sprintf("%s %s", brands[i%len(brands)], sizes[i%len(sizes)]),
		"quantidade": (i * 37) % 90,
		"local":      cities[i%len(cities)],
	}
}

func companyRow(i int) map[string]any {
	return map[string]any{
		"id":           i,
		"razao_social": fmt.Sprintf("Empresa Simulada %02d Ltda", i),
		"cnpj":         fmt.Sprintf("%02d.%03d.%03d/0001-%02d", i, i*3%1000, i*7%1000, i%100),
		"cidade":       cities[i%len(cities)],
	}
}
