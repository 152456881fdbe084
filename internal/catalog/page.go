package catalog

const (
	BooksPerPage      = 12
	AuthorsPerPage    = 20
	PublishersPerPage = 20
)

type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
	TotalCount int `json:"total_count"`
}

// normalizePage clamps a requested page into [1, last page]. An empty result
// set still has one (empty) page.
func normalizePage(requested, total, perPage int) (page, pages int) {
	pages = (total + perPage - 1) / perPage
	if pages < 1 {
		pages = 1
	}

	page = requested
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	return page, pages
}

func newPage[T any](items []T, page, perPage, pages, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:      items,
		Page:       page,
		PerPage:    perPage,
		TotalPages: pages,
		TotalCount: total,
	}
}
