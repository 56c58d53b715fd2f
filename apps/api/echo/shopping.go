package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core/address"
	"github.com/saudamart/sauda/core/cart"
	"github.com/saudamart/sauda/core/user"
	"github.com/saudamart/sauda/core/wishlist"
)

type shoppingApi struct {
	*server
	carts     *cart.Service
	wishlists *wishlist.Service
	addresses *address.Service
}

func (s *server) registerShoppingAPI(g *echo.Group, authed []echo.MiddlewareFunc) {
	api := shoppingApi{server: s, carts: s.deps.CartSvc, wishlists: s.deps.WishlistSvc, addresses: s.deps.AddressSvc}

	cg := g.Group("/cart", authed...)
	cg.GET("", api.retrieveCart)
	cg.DELETE("", api.clearCart)
	cg.POST("/items", api.addCartItem)
	cg.PUT("/items/:productID", api.setCartItem)
	cg.DELETE("/items/:productID", api.removeCartItem)

	wg := g.Group("/wishlist", authed...)
	wg.GET("", api.queryWishlist)
	wg.PUT("/:productID", api.addWishlistItem)
	wg.DELETE("/:productID", api.removeWishlistItem)

	ag := g.Group("/addresses", authed...)
	ag.GET("", api.queryAddresses)
	ag.POST("", api.createAddress)
	ag.PUT("/:id", api.updateAddress)
	ag.DELETE("/:id", api.destroyAddress)
	ag.POST("/:id/default", api.setDefaultAddress)
}

func (api *shoppingApi) user(ctx echo.Context) (user.User, error) {
	usr, err := getContextUser(ctx, api.deps.UserSvc)
	return usr, errors.Wrap(err, "getting context user")
}

// Cart

func (api *shoppingApi) retrieveCart(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	c, err := api.carts.Get(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "getting cart")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *shoppingApi) clearCart(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	if err = api.carts.Clear(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "clearing cart")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *shoppingApi) addCartItem(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}

	var data cart.AddItem
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AddItem")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.carts.Add(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding cart item")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *shoppingApi) setCartItem(ctx echo.Context) error {
	productID, err := paramID(ctx, "productID")
	if err != nil {
		return err
	}
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}

	var data cart.SetQuantity
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetQuantity")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.carts.SetQuantity(ctx.Request().Context(), usr.ID, productID, data.Quantity)
	if err != nil {
		return errors.Wrap(err, "setting cart item quantity")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *shoppingApi) removeCartItem(ctx echo.Context) error {
	productID, err := paramID(ctx, "productID")
	if err != nil {
		return err
	}
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	c, err := api.carts.Remove(ctx.Request().Context(), usr.ID, productID)
	if err != nil {
		return errors.Wrap(err, "removing cart item")
	}
	return ctx.JSON(http.StatusOK, c)
}

// Wishlist

func (api *shoppingApi) queryWishlist(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	entries, err := api.wishlists.List(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "listing wishlist")
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *shoppingApi) addWishlistItem(ctx echo.Context) error {
	productID, err := paramID(ctx, "productID")
	if err != nil {
		return err
	}
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	if err = api.wishlists.Add(ctx.Request().Context(), usr.ID, productID); err != nil {
		return errors.Wrap(err, "adding wishlist item")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *shoppingApi) removeWishlistItem(ctx echo.Context) error {
	productID, err := paramID(ctx, "productID")
	if err != nil {
		return err
	}
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	if err = api.wishlists.Remove(ctx.Request().Context(), usr.ID, productID); err != nil {
		return errors.Wrap(err, "removing wishlist item")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Addresses

func (api *shoppingApi) queryAddresses(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	addrs, err := api.addresses.List(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "listing addresses")
	}
	return ctx.JSON(http.StatusOK, addrs)
}

func (api *shoppingApi) createAddress(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}

	var data address.NewAddress
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAddress")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.addresses.Create(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating address")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *shoppingApi) updateAddress(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	a, err := api.addresses.Get(ctx.Request().Context(), usr.ID, id)
	if err != nil {
		return errors.Wrap(err, "getting address")
	}

	var data address.UpdateAddress
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAddress")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	a, err = api.addresses.Update(ctx.Request().Context(), a, data)
	if err != nil {
		return errors.Wrap(err, "updating address")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *shoppingApi) destroyAddress(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	if err = api.addresses.Delete(ctx.Request().Context(), usr.ID, id); err != nil {
		return errors.Wrap(err, "deleting address")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *shoppingApi) setDefaultAddress(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	a, err := api.addresses.SetDefault(ctx.Request().Context(), usr.ID, id)
	if err != nil {
		return errors.Wrap(err, "setting default address")
	}
	return ctx.JSON(http.StatusOK, a)
}
