package shared

// Pagination describes one page of a server-paginated list for templates.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination computes pagination metadata. Non-positive page and size fall
// back to the first page of 20.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	totalPages := 0
	if total > 0 {
		totalPages = (total + perPage - 1) / perPage
	}
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// HasPrev reports whether a previous page exists.
func (p Pagination) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a following page exists.
func (p Pagination) HasNext() bool { return p.Page < p.TotalPages }

// From is the 1-based index of the first row on the page, 0 when empty.
func (p Pagination) From() int {
	if p.Total == 0 {
		return 0
	}
	return min((p.Page-1)*p.PerPage+1, p.Total)
}

// To is the 1-based index of the last row on the page, 0 when empty.
func (p Pagination) To() int {
	return min(p.Page*p.PerPage, p.Total)
}
