// Package oauthsvc resolves OAuth logins through Supabase Auth.
package oauthsvc

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/supabase-community/gotrue-go/types"
	"github.com/supabase-community/supabase-go"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/user"
)

type supabaseProvider struct {
	exchange func(code, codeVerifier string) (types.User, error)
	getUser  func(accessToken string) (types.User, error)
	logger   core.Logger
}

var _ user.IdentityProvider = (*supabaseProvider)(nil)

// NewSupabaseProvider returns nil when Supabase is not configured.
func NewSupabaseProvider(conf core.SupabaseConfig, logger core.Logger) (user.IdentityProvider, error) {
	if conf.URL == "" || conf.AnonKey == "" {
		return nil, nil
	}
	client, err := supabase.NewClient(conf.URL, conf.AnonKey, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating supabase client")
	}

	return &supabaseProvider{
		exchange: func(code, codeVerifier string) (types.User, error) {
			res, err := client.Auth.Token(types.TokenRequest{
				GrantType:    "pkce",
				Code:         code,
				CodeVerifier: codeVerifier,
			})
			if err != nil {
				return types.User{}, err
			}
			return res.User, nil
		},
		getUser: func(accessToken string) (types.User, error) {
			res, err := client.Auth.WithToken(accessToken).GetUser()
			if err != nil {
				return types.User{}, err
			}
			return res.User, nil
		},
		logger: logger,
	}, nil
}

func (p *supabaseProvider) ExchangeCode(_ context.Context, code, codeVerifier string) (user.Identity, error) {
	u, err := p.exchange(code, codeVerifier)
	if err != nil {
		p.logger.Info("oauth: code exchange refused", err)
		return user.Identity{}, user.ErrInvalidOAuth
	}
	return identityOf(u)
}

func (p *supabaseProvider) VerifyAccessToken(_ context.Context, accessToken string) (user.Identity, error) {
	u, err := p.getUser(accessToken)
	if err != nil {
		p.logger.Info("oauth: access token refused", err)
		return user.Identity{}, user.ErrInvalidOAuth
	}
	return identityOf(u)
}

func identityOf(u types.User) (user.Identity, error) {
	if u.ID == uuid.Nil {
		return user.Identity{}, user.ErrInvalidOAuth
	}
	if u.Email == "" {
		return user.Identity{}, user.ErrNoEmail
	}
	return user.Identity{
		Provider:   user.ProviderSupabase,
		ProviderID: u.ID.String(),
		Email:      strings.ToLower(u.Email),
		Name:       metadataName(u.UserMetadata),
	}, nil
}

// metadataName reads the display name set by the OAuth providers (Google uses full_name, GitHub name).
func metadataName(meta map[string]interface{}) string {
	for _, key := range []string{"full_name", "name", "user_name"} {
		if v, ok := meta[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
