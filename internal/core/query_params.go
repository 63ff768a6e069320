// internal/core/query_params.go
package core

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Default and limit constants for pagination
const (
	DefaultLimit = 50
	MaxLimit     = 200
	DefaultOrder = "asc"
	DefaultSort  = "created_at"
)

// SortableColumns maps accepted sort keys to dashboard columns.
var SortableColumns = map[string]string{
	"name":       "name",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

// ErrInvalidQuery marks a malformed list query parameter.
var ErrInvalidQuery = errors.New("invalid query parameter")

// ListQueryOptions holds parsed query parameters for dashboard listings
type ListQueryOptions struct {
	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string
	SortOrder string // "asc" or "desc"
}

// DefaultListQueryOptions returns the options used when no query is given.
func DefaultListQueryOptions() *ListQueryOptions {
	return &ListQueryOptions{
		Limit:     DefaultLimit,
		Offset:    0,
		SortBy:    DefaultSort,
		SortOrder: DefaultOrder,
	}
}

// ParseListQueryOptions extracts pagination and sorting options from query parameters.
// Returns the parsed options and any validation error.
func ParseListQueryOptions(queryParams url.Values) (*ListQueryOptions, error) {
	opts := DefaultListQueryOptions()

	// Parse limit
	if limitStr := queryParams.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, fmt.Errorf("%w 'limit': must be an integer", ErrInvalidQuery)
		}
		if limit < 1 {
			return nil, fmt.Errorf("%w 'limit': must be at least 1", ErrInvalidQuery)
		}
		if limit > MaxLimit {
			return nil, fmt.Errorf("%w 'limit': maximum is %d", ErrInvalidQuery, MaxLimit)
		}
		opts.Limit = limit
	}

	// Parse offset
	if offsetStr := queryParams.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, fmt.Errorf("%w 'offset': must be an integer", ErrInvalidQuery)
		}
		if offset < 0 {
			return nil, fmt.Errorf("%w 'offset': must be non-negative", ErrInvalidQuery)
		}
		opts.Offset = offset
	}

	// Parse sort column
	if sortBy := queryParams.Get("sort"); sortBy != "" {
		column, ok := SortableColumns[strings.ToLower(sortBy)]
		if !ok {
			return nil, fmt.Errorf("%w 'sort': '%s' is not sortable", ErrInvalidQuery, sortBy)
		}
		opts.SortBy = column
	}

	// Parse sort order
	if order := queryParams.Get("order"); order != "" {
		lowerOrder := strings.ToLower(order)
		if lowerOrder != "asc" && lowerOrder != "desc" {
			return nil, fmt.Errorf("%w 'order': must be 'asc' or 'desc'", ErrInvalidQuery)
		}
		opts.SortOrder = lowerOrder
	}

	return opts, nil
}
