package model

// Page is a view over an owner's fully resolved list.
type Page struct {
	Owner   string `json:"owner"`
	Items   []Item `json:"posts"`
	Total   int    `json:"total"`
	Offset  int    `json:"offset"`
	Limit   int    `json:"limit"`
	HasMore bool   `json:"hasMore"`
	Source  Source `json:"source"`
}

// Paginate slices items[offset:offset+limit] with the bounds behavior of the
// ledger contract: an offset past the end yields an empty page, a limit past
// the end is clamped, and limit 0 means "everything from offset".
// Negative values are rejected.
func Paginate(items []Item, offset, limit int) ([]Item, error) {
	if offset < 0 {
		return nil, NewError(ErrInvalidRequest, "offset must not be negative")
	}
	if limit < 0 {
		return nil, NewError(ErrInvalidRequest, "limit must not be negative")
	}
	if offset >= len(items) {
		return []Item{}, nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]Item, end-offset)
	copy(out, items[offset:end])
	return out, nil
}
