// Package directory is a typed client for the identity and room REST
// endpoints the chat client depends on. Every request carries the stored
// bearer token.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roomchat/roomchat/internal/credential"
)

var (
	// ErrUnauthorized is returned for 401 and 403 responses and when no
	// token is stored.
	ErrUnauthorized = errors.New("directory: unauthorized")

	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("directory: not found")

	// ErrInvalidRoomName is returned before any request when a room name
	// fails local checks.
	ErrInvalidRoomName = errors.New("directory: invalid room name")
)

// MaxRoomNameLength caps the length of a new room's name, in characters.
const MaxRoomNameLength = 20

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("directory: %s %s: status %d", e.Method, e.URL, e.Code)
}

// Paths are the endpoint paths relative to Config.BaseURL.
type Paths struct {
	CurrentUser   string // GET
	AddUserToRoom string // PUT {AddUserToRoom}/{room}
	Room          string // GET, DELETE {Room}/{room}; POST {Room}
	Rooms         string // GET {Rooms}?page=&limit=, GET {Rooms}/{name}
	Favorites     string // POST
}

// Config holds the REST client parameters.
type Config struct {
	BaseURL string
	Timeout time.Duration // per request
	Paths   Paths
}

// DefaultConfig returns a Config for a local development backend.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8000",
		Timeout: time.Second,
		Paths: Paths{
			CurrentUser:   "/api/user/me",
			AddUserToRoom: "/api/room/add_user",
			Room:          "/api/room",
			Rooms:         "/api/rooms",
			Favorites:     "/api/favorites",
		},
	}
}

// User is the identity resolved from the bearer token.
type User struct {
	Username  string `json:"username"`
	Avatar    string `json:"avatar,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Surname   string `json:"surname,omitempty"`
}

// AvatarURL returns whichever avatar field the backend populated.
func (u User) AvatarURL() string {
	if u.Avatar != "" {
		return u.Avatar
	}
	return u.ImageURL
}

// Member is one entry of a room's member list.
type Member struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// AvatarURL returns whichever avatar field the backend populated.
func (m Member) AvatarURL() string {
	if m.Avatar != "" {
		return m.Avatar
	}
	return m.ImageURL
}

// Room is a room snapshot or directory listing entry.
type Room struct {
	RoomName   string   `json:"room_name"`
	Members    []Member `json:"members"`
	IsFavorite bool     `json:"is_favorites,omitempty"`
	IsOwner    bool     `json:"is_owner,omitempty"`
}

// Client calls the directory endpoints.
type Client struct {
	cfg    Config
	http   *http.Client
	tokens credential.Store
}

// NewClient creates a Client reading its bearer token from tokens.
func NewClient(cfg Config, tokens credential.Store) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		tokens: tokens,
	}
}

// CurrentUser resolves the stored token to a user.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, c.cfg.Paths.CurrentUser, nil, nil, &u); err != nil {
		return nil, err
	}
	if u.Username == "" {
		return nil, fmt.Errorf("directory: current user has no username")
	}
	return &u, nil
}

// AddUserToRoom registers the current user as a member of room.
func (c *Client) AddUserToRoom(ctx context.Context, room string) error {
	return c.do(ctx, http.MethodPut, join(c.cfg.Paths.AddUserToRoom, room), nil, nil, nil)
}

// Room fetches the snapshot of room.
func (c *Client) Room(ctx context.Context, room string) (*Room, error) {
	var r Room
	if err := c.do(ctx, http.MethodGet, join(c.cfg.Paths.Room, room), nil, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRoom creates a room. The name is trimmed and must be non-empty and
// at most MaxRoomNameLength characters.
func (c *Client) CreateRoom(ctx context.Context, name string) (*Room, error) {
	name, err := ValidateRoomName(name)
	if err != nil {
		return nil, err
	}
	var r Room
	body := map[string]string{"room_name": name}
	if err := c.do(ctx, http.MethodPost, c.cfg.Paths.Room, nil, body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRooms returns one page of the room directory.
func (c *Client) ListRooms(ctx context.Context, page, limit int) ([]Room, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	var rooms []Room
	if err := c.do(ctx, http.MethodGet, c.cfg.Paths.Rooms, q, nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// FindRoom searches the directory by name. Names with spaces are refused.
func (c *Client) FindRoom(ctx context.Context, name string) ([]Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is empty", ErrInvalidRoomName)
	}
	if strings.Contains(name, " ") {
		return nil, fmt.Errorf("%w: name contains spaces", ErrInvalidRoomName)
	}
	var rooms []Room
	if err := c.do(ctx, http.MethodGet, join(c.cfg.Paths.Rooms, name), nil, nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// SetFavorite adds room to, or removes it from, the user's favorites.
func (c *Client) SetFavorite(ctx context.Context, room string, chosen bool) error {
	body := struct {
		RoomName string `json:"room_name"`
		IsChosen bool   `json:"is_chosen"`
	}{room, chosen}
	return c.do(ctx, http.MethodPost, c.cfg.Paths.Favorites, nil, body, nil)
}

// DeleteRoom deletes a room owned by the current user.
func (c *Client) DeleteRoom(ctx context.Context, room string) error {
	return c.do(ctx, http.MethodDelete, join(c.cfg.Paths.Room, room), nil, nil, nil)
}

// ValidateRoomName trims name and checks it is fit for a new room.
func ValidateRoomName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is empty", ErrInvalidRoomName)
	}
	if n := len([]rune(name)); n > MaxRoomNameLength {
		return "", fmt.Errorf("%w: %d characters, limit is %d", ErrInvalidRoomName, n, MaxRoomNameLength)
	}
	return name, nil
}

func join(prefix, segment string) string {
	return strings.TrimRight(prefix, "/") + "/" + url.PathEscape(segment)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		if errors.Is(err, credential.ErrNoCredential) {
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return err
	}

	u := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("directory: encode body: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("directory: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("directory: %s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s", ErrUnauthorized, method, u)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, u)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{Method: method, URL: u, Code: resp.StatusCode}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("directory: decode %s %s: %w", method, u, err)
	}
	return nil
}
