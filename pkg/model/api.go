package model

import "time"

// Response is the standard inspector API response envelope.
type Response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error"`
}

// Pagination holds pagination metadata for list endpoints.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// ListOptions configures list queries over recorded runs and events.
type ListOptions struct {
	Limit    int
	Offset   int
	Scenario string // optional scenario name filter (runs only)
	Kind     string // optional event kind filter (events only)
}

// DefaultListOptions returns sensible defaults.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: defaultListLimit}
}

// Clamp enforces limits (max 500, min 1). Event listings are long, so the
// ceiling is higher than a typical REST page.
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = defaultListLimit
	}
	if o.Limit > maxListLimit {
		o.Limit = maxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// NewPagination builds pagination metadata for a page of n items out of total.
func NewPagination(opts ListOptions, n, total int) *Pagination {
	return &Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+n < total,
	}
}
