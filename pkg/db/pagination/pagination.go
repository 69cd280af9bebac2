// Package pagination provides limit/offset helpers shared by listing
// endpoints.
package pagination

const (
	defaultLimit = 100
	maxLimit     = 1000
)

type Pagination struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// Clamp normalizes the requested page to sane bounds: limit in [1, 1000]
// (default 100), offset non-negative.
func (p Pagination) Clamp() Pagination {
	out := p
	if out.Limit <= 0 {
		out.Limit = defaultLimit
	}
	if out.Limit > maxLimit {
		out.Limit = maxLimit
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	return out
}
