package api

import (
	"context"
	"fmt"
	"io"

	"github.com/xaenox/pairpost/internal/models"
)

const (
	authRegister       = "/api/auth/register"
	authLogin          = "/api/auth/login"
	authLogout         = "/api/auth/logout"
	authMe             = "/api/auth/me"
	authProfilePicture = "/api/auth/profile-picture"
	authUsers          = "/api/auth/users"
)

func (c *Client) Register(ctx context.Context, reg models.Registration) (*models.RegisterResponse, error) {
	res, err := c.r(ctx).
		SetBody(reg).
		SetResult(&models.RegisterResponse{}).
		Post(authRegister)
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}

	return res.Result().(*models.RegisterResponse), nil
}

// Login exchanges credentials for a bearer token. The endpoint is an OAuth2
// password form, so the email travels as "username".
func (c *Client) Login(ctx context.Context, creds models.Credentials) (*models.TokenResponse, error) {
	res, err := c.r(ctx).
		SetFormData(map[string]string{
			"username": creds.Email,
			"password": creds.Password,
		}).
		SetResult(&models.TokenResponse{}).
		Post(authLogin)
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to log in: %w", err)
	}

	return res.Result().(*models.TokenResponse), nil
}

func (c *Client) Logout(ctx context.Context) error {
	res, err := c.r(ctx).Post(authLogout)
	if err := check(res, err); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}
	return nil
}

func (c *Client) Me(ctx context.Context) (*models.User, error) {
	res, err := c.r(ctx).
		SetResult(&models.User{}).
		Get(authMe)
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to fetch current user: %w", err)
	}

	return res.Result().(*models.User), nil
}

func (c *Client) UpdateProfile(ctx context.Context, update models.ProfileUpdate) (*models.User, error) {
	res, err := c.r(ctx).
		SetBody(update).
		SetResult(&models.User{}).
		Put(authMe)
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return res.Result().(*models.User), nil
}

func (c *Client) UploadProfilePicture(ctx context.Context, fileName string, file io.Reader) (*models.User, error) {
	res, err := c.r(ctx).
		SetFileReader("file", fileName, file).
		SetResult(&models.User{}).
		Post(authProfilePicture)
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to upload profile picture: %w", err)
	}

	return res.Result().(*models.User), nil
}

// Users lists every account, for browsing who to connect with.
func (c *Client) Users(ctx context.Context) ([]models.User, error) {
	res, err := c.r(ctx).
		SetResult(&[]models.User{}).
		Get(authUsers)
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}

	return *res.Result().(*[]models.User), nil
}
