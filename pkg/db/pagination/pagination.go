package pagination

// Page is an offset page request. Page is 1-based.
type Page struct {
	Page     int `form:"page"`
	PageSize int `form:"pageSize"`
}

// Normalize fills defaults and caps PageSize at max.
func Normalize(page, pageSize, def, max int) Page {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = def
	}
	if max > 0 && pageSize > max {
		pageSize = max
	}
	return Page{Page: page, PageSize: pageSize}
}

func (p Page) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

func (p Page) Limit() int {
	return p.PageSize
}

// Result is one page of T plus the total matching the filter.
type Result[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
}

func NewResult[T any](items []T, total int64, p Page) Result[T] {
	if items == nil {
		items = []T{}
	}
	return Result[T]{Items: items, Total: total, Page: p.Page, PageSize: p.PageSize}
}
