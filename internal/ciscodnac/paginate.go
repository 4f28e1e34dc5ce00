package ciscodnac

import "context"

// PageFunc fetches one page starting at the 1-based offset
type PageFunc[T any] func(ctx context.Context, offset, limit int) ([]T, error)

// Paginate calls fetch with an increasing offset until a page comes back
// shorter than limit, and returns the concatenation of all pages. A server
// that keeps returning full pages is trusted; there is no total-count check.
func Paginate[T any](ctx context.Context, limit int, fetch PageFunc[T]) ([]T, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	items := []T{}
	for offset := 1; ; offset += limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := fetch(ctx, offset, limit)
		if err != nil {
			return nil, err
		}
		items = append(items, page...)

		if len(page) < limit {
			return items, nil
		}
	}
}
