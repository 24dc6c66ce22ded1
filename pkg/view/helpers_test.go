package view

import (
	"time"

	"github.com/3leaps/casegen/pkg/gateway"
)

var testDay = time.Date(2026, 10, 15, 23, 59, 0, 0, time.UTC)

func gatewayPage(n int) gateway.Pagination {
	return gateway.Pagination{Page: n, PageSize: gateway.DefaultPageSize}
}
