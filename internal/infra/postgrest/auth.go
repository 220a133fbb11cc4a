package postgrest

import (
	"context"
	"net/http"
	"net/url"
)

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInResult is the token pair returned by a password sign-in.
type SignInResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// SignIn exchanges email and password for an access token.
func (c *Client) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	anon := *c
	anon.Token = ""
	var out SignInResult
	err := anon.do(ctx, http.MethodPost, "/auth/v1/token", url.Values{"grant_type": {"password"}},
		signInRequest{Email: email, Password: password}, nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
