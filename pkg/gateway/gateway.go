// Package gateway provides typed request builders over the transport client,
// one facade per server resource family.
//
// Gateways validate nothing beyond type shape: the server is the authority on
// semantic validation. Successful envelopes are unwrapped to their data; all
// failures propagate unchanged to the caller.
package gateway

import (
	"context"
	"net/url"
	"strconv"

	"github.com/3leaps/casegen/pkg/transport"
)

// Doer is the subset of *transport.Client the gateways need.
type Doer interface {
	Send(ctx context.Context, method, path string, body any, opts ...transport.RequestOption) (*transport.RawResponse, error)
	Do(ctx context.Context, method, path string, body, out any, opts ...transport.RequestOption) (*transport.Envelope, error)
	Fetch(ctx context.Context, method, path string, body any, opts ...transport.RequestOption) (*transport.Blob, error)
}

var _ Doer = (*transport.Client)(nil)

// API bundles every gateway over one shared client.
type API struct {
	Files    *Files
	Cases    *Cases
	Tasks    *Tasks
	MindMaps *MindMaps
	Stats    *Stats
}

// New builds every gateway over c.
func New(c Doer) *API {
	return &API{
		Files:    &Files{c: c},
		Cases:    &Cases{c: c},
		Tasks:    &Tasks{c: c},
		MindMaps: &MindMaps{c: c},
		Stats:    &Stats{c: c},
	}
}

// Pagination is the common page window of list operations.
type Pagination struct {
	Page     int
	PageSize int
}

// DefaultPageSize is used when PageSize is zero.
const DefaultPageSize = 10

func (p Pagination) normalized() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	return p
}

func (p Pagination) apply(q url.Values) {
	n := p.normalized()
	q.Set("page", strconv.Itoa(n.Page))
	q.Set("page_size", strconv.Itoa(n.PageSize))
}

// capPage enforces len(items) <= page size on what the caller sees.
func capPage[T any](page *Page[T], size int) *Page[T] {
	if page.Items == nil {
		page.Items = []T{}
	}
	if size > 0 && len(page.Items) > size {
		page.Items = page.Items[:size]
	}
	return page
}
