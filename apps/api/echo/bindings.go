package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/catalog"
	"github.com/saudamart/sauda/core/order"
	"github.com/saudamart/sauda/core/user"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

// Query param parsers; malformed values are ignored like absent ones.

func queryInt(ctx echo.Context, name string) (int, bool) {
	n, err := strconv.Atoi(ctx.QueryParam(name))
	return n, err == nil
}

func queryInt64(ctx echo.Context, name string) *int64 {
	n, err := strconv.ParseInt(ctx.QueryParam(name), 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func queryBool(ctx echo.Context, name string) *bool {
	b, err := strconv.ParseBool(ctx.QueryParam(name))
	if err != nil {
		return nil
	}
	return &b
}

func queryTime(ctx echo.Context, name string) time.Time {
	t, err := time.Parse(time.RFC3339, ctx.QueryParam(name))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func bindPage(ctx echo.Context) core.Page {
	var page core.Page
	page.Page, _ = queryInt(ctx, "page")
	page.Limit, _ = queryInt(ctx, "limit")
	page.Clean()
	return page
}

func bindUserFilter(ctx echo.Context) *user.QueryFilter {
	filter := &user.QueryFilter{
		Search:      ctx.QueryParam("search"),
		Roles:       ctx.QueryParams()["role"],
		IsActive:    queryBool(ctx, "is_active"),
		CreatedFrom: queryTime(ctx, "created_from"),
		CreatedTo:   queryTime(ctx, "created_to"),
	}
	filter.Clean()
	return filter
}

// bindProductFilter reads the product filters; category accepts an ID or a slug.
func bindProductFilter(ctx echo.Context) catalog.ProductFilter {
	filter := catalog.ProductFilter{
		Search:   ctx.QueryParam("search"),
		MinPrice: queryInt64(ctx, "min_price"),
		MaxPrice: queryInt64(ctx, "max_price"),
	}
	if cat := ctx.QueryParam("category"); cat != "" {
		key := catalog.ParseKey(cat)
		filter.CategoryID, filter.CategorySlug = key.ID, key.Slug
	}
	if b := queryBool(ctx, "in_stock"); b != nil {
		filter.InStock = *b
	}
	if b := queryBool(ctx, "featured"); b != nil {
		filter.Featured = *b
	}
	if b := queryBool(ctx, "include_inactive"); b != nil && contextIsAdmin(ctx) {
		filter.IncludeInactive = *b
	}
	return filter
}

func bindOrderFilter(ctx echo.Context) order.QueryFilter {
	return order.QueryFilter{
		UserID:        ctx.QueryParam("user_id"),
		Status:        ctx.QueryParam("status"),
		PaymentMethod: ctx.QueryParam("payment_method"),
		Search:        ctx.QueryParam("search"),
	}
}

// paramID returns the UUID path param name; anything else cannot match a row.
func paramID(ctx echo.Context, name string) (string, error) {
	id := ctx.Param(name)
	if _, err := uuid.Parse(id); err != nil {
		return "", errHttpNotFound
	}
	return id, nil
}
