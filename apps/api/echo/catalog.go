package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core/catalog"
	"github.com/saudamart/sauda/core/review"
)

type catalogApi struct {
	*server
	svc     *catalog.Service
	reviews *review.Service
}

func (s *server) registerCatalogAPI(g *echo.Group, authed []echo.MiddlewareFunc) {
	api := catalogApi{server: s, svc: s.deps.CatalogSvc, reviews: s.deps.ReviewSvc}
	optional := s.auth.optionalJWTMiddleware()
	admin := append(append([]echo.MiddlewareFunc(nil), authed...), adminMiddleware())
	customer := authed

	// path params share a name: the router keeps one name per path segment
	g.GET("/categories", api.queryCategories)
	g.GET("/categories/:key", api.retrieveCategory)
	g.POST("/categories", api.createCategory, admin...)
	g.PUT("/categories/:key", api.updateCategory, admin...)
	g.DELETE("/categories/:key", api.destroyCategory, admin...)

	g.GET("/products", api.queryProducts, optional)
	g.GET("/products/:key", api.retrieveProduct, optional)
	g.POST("/products", api.createProduct, admin...)
	g.POST("/products/images/presign", api.presignImage, admin...)
	g.PUT("/products/:key", api.updateProduct, admin...)
	g.DELETE("/products/:key", api.destroyProduct, admin...)

	g.GET("/products/:key/reviews", api.queryReviews, optional)
	g.POST("/products/:key/reviews", api.createReview, customer...)
	g.PUT("/reviews/:id", api.updateReview, customer...)
	g.DELETE("/reviews/:id", api.destroyReview, customer...)
}

// Categories

func (api *catalogApi) queryCategories(ctx echo.Context) error {
	cats, cached, err := api.svc.QueryCategories(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying categories")
	}
	setCacheHeader(ctx, cached)
	return ctx.JSON(http.StatusOK, cats)
}

func (api *catalogApi) retrieveCategory(ctx echo.Context) error {
	cat, err := api.svc.GetCategory(ctx.Request().Context(), ctx.Param("key"))
	if err != nil {
		return errors.Wrap(err, "getting category")
	}
	return ctx.JSON(http.StatusOK, cat)
}

func (api *catalogApi) createCategory(ctx echo.Context) error {
	var data catalog.NewCategory
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCategory")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	cat, err := api.svc.CreateCategory(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating category")
	}
	return ctx.JSON(http.StatusCreated, cat)
}

func (api *catalogApi) updateCategory(ctx echo.Context) error {
	id, err := paramID(ctx, "key")
	if err != nil {
		return err
	}
	cat, err := api.svc.GetCategory(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting category")
	}

	var data catalog.UpdateCategory
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCategory")
	}
	if err = data.Validate(ctx.Request().Context(), cat, api.validate, api.svc); err != nil {
		return err
	}

	cat, err = api.svc.UpdateCategory(ctx.Request().Context(), cat, data)
	if err != nil {
		return errors.Wrap(err, "updating category")
	}
	return ctx.JSON(http.StatusOK, cat)
}

func (api *catalogApi) destroyCategory(ctx echo.Context) error {
	id, err := paramID(ctx, "key")
	if err != nil {
		return err
	}
	if _, err = api.svc.GetCategory(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "getting category")
	}
	if err = api.svc.DeleteCategory(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting category")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Products

func (api *catalogApi) queryProducts(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	page, cached, err := api.svc.QueryProducts(ctx.Request().Context(), bindProductFilter(ctx), ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying products")
	}
	setCacheHeader(ctx, cached)
	return ctx.JSON(http.StatusOK, page)
}

func (api *catalogApi) retrieveProduct(ctx echo.Context) error {
	p, cached, err := api.svc.GetProduct(ctx.Request().Context(), ctx.Param("key"), contextIsAdmin(ctx))
	if err != nil {
		return errors.Wrap(err, "getting product")
	}
	setCacheHeader(ctx, cached)
	return ctx.JSON(http.StatusOK, p)
}

func (api *catalogApi) createProduct(ctx echo.Context) error {
	var data catalog.NewProduct
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProduct")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	p, err := api.svc.CreateProduct(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating product")
	}
	return ctx.JSON(http.StatusCreated, p)
}

// product returns the product of the :key param, inactive ones included.
func (api *catalogApi) product(ctx echo.Context) (catalog.Product, error) {
	id, err := paramID(ctx, "key")
	if err != nil {
		return catalog.Product{}, err
	}
	p, _, err := api.svc.GetProduct(ctx.Request().Context(), id, true)
	return p, errors.Wrap(err, "getting product")
}

func (api *catalogApi) updateProduct(ctx echo.Context) error {
	p, err := api.product(ctx)
	if err != nil {
		return err
	}

	var data catalog.UpdateProduct
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProduct")
	}
	if err = data.Validate(ctx.Request().Context(), p, api.validate, api.svc); err != nil {
		return err
	}

	p, err = api.svc.UpdateProduct(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "updating product")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *catalogApi) destroyProduct(ctx echo.Context) error {
	p, err := api.product(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteProduct(ctx.Request().Context(), p.ID); err != nil {
		return errors.Wrap(err, "deleting product")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *catalogApi) presignImage(ctx echo.Context) error {
	var data catalog.ImageUploadRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ImageUploadRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	upload, err := api.svc.PresignImageUpload(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "presigning image upload")
	}
	return ctx.JSON(http.StatusOK, upload)
}

// Reviews

func (api *catalogApi) queryReviews(ctx echo.Context) error {
	p, _, err := api.svc.GetProduct(ctx.Request().Context(), ctx.Param("key"), contextIsAdmin(ctx))
	if err != nil {
		return errors.Wrap(err, "getting product")
	}
	page, err := api.reviews.List(ctx.Request().Context(), p.ID, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "listing reviews")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *catalogApi) createReview(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	p, _, err := api.svc.GetProduct(ctx.Request().Context(), ctx.Param("key"), false)
	if err != nil {
		return errors.Wrap(err, "getting product")
	}

	var data review.NewReview
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReview")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	r, err := api.reviews.Create(ctx.Request().Context(), usr, p, data)
	if err != nil {
		return errors.Wrap(err, "creating review")
	}
	return ctx.JSON(http.StatusCreated, r)
}

func (api *catalogApi) updateReview(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data review.UpdateReview
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateReview")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	r, err := api.reviews.Update(ctx.Request().Context(), usr, id, data)
	if err != nil {
		return errors.Wrap(err, "updating review")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *catalogApi) destroyReview(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.reviews.Delete(ctx.Request().Context(), usr, id); err != nil {
		return errors.Wrap(err, "deleting review")
	}
	return ctx.NoContent(http.StatusNoContent)
}
