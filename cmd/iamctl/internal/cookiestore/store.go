// Package cookiestore persists the session cookies of iamctl between runs.
package cookiestore

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chimerakang/iam-session-go/apiclient"
)

const cookiesFile = "cookies.json"

type storedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"httpOnly,omitempty"`
}

type fileData struct {
	URL     string         `json:"url"`
	Cookies []storedCookie `json:"cookies"`
}

// FileStore is an http.CookieJar that remembers the cookies set by one
// server and writes them to a JSON file on Save.
type FileStore struct {
	path string
	jar  http.CookieJar

	mu      sync.Mutex
	url     *url.URL
	cookies map[string]storedCookie
	dirty   bool
}

var _ http.CookieJar = (*FileStore)(nil)

// NewFileStore creates a store under ~/.iamctl.
func NewFileStore() (*FileStore, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	return NewFileStoreAt(filepath.Join(home, ".iamctl"))
}

// NewFileStoreAt creates a store in dir, creating the directory if needed.
func NewFileStoreAt(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	jar, err := apiclient.NewJar()
	if err != nil {
		return nil, err
	}
	return &FileStore{
		path:    filepath.Join(dir, cookiesFile),
		jar:     jar,
		cookies: make(map[string]storedCookie),
	}, nil
}

// Path returns the file backing the store.
func (s *FileStore) Path() string { return s.path }

// Load restores the cookies saved for serverURL. Cookies saved for another
// server, and expired ones, are ignored. A missing file is not an error.
func (s *FileStore) Load(serverURL string) error {
	u, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	s.mu.Lock()
	s.url = u
	s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cookies file: %w", err)
	}
	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return fmt.Errorf("failed to unmarshal cookies: %w", err)
	}
	if fd.URL != u.Scheme+"://"+u.Host {
		return nil
	}

	now := time.Now()
	var restored []*http.Cookie
	s.mu.Lock()
	for _, c := range fd.Cookies {
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			continue
		}
		s.cookies[c.Name] = c
		restored = append(restored, &http.Cookie{
			Name: c.Name, Value: c.Value, Path: c.Path,
			Expires: c.Expires, Secure: c.Secure, HttpOnly: c.HttpOnly,
		})
	}
	s.mu.Unlock()

	s.jar.SetCookies(u, restored)
	return nil
}

// SetCookies implements http.CookieJar.
func (s *FileStore) SetCookies(u *url.URL, cookies []*http.Cookie) {
	s.jar.SetCookies(u, cookies)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.url != nil && u.Host != s.url.Host {
		return
	}
	now := time.Now()
	for _, c := range cookies {
		expires := c.Expires
		if c.MaxAge > 0 {
			expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		if c.MaxAge < 0 || (!expires.IsZero() && expires.Before(now)) {
			delete(s.cookies, c.Name)
		} else {
			s.cookies[c.Name] = storedCookie{
				Name: c.Name, Value: c.Value, Path: c.Path,
				Expires: expires, Secure: c.Secure, HttpOnly: c.HttpOnly,
			}
		}
		s.dirty = true
	}
}

// Cookies implements http.CookieJar.
func (s *FileStore) Cookies(u *url.URL) []*http.Cookie {
	return s.jar.Cookies(u)
}

// Save writes the current cookies if they changed since Load.
func (s *FileStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty || s.url == nil {
		return nil
	}

	fd := fileData{URL: s.url.Scheme + "://" + s.url.Host, Cookies: make([]storedCookie, 0, len(s.cookies))}
	for _, c := range s.cookies {
		fd.Cookies = append(fd.Cookies, c)
	}
	data, err := json.MarshalIndent(fd, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write cookies file: %w", err)
	}
	s.dirty = false
	return nil
}

// Delete removes the cookies file.
func (s *FileStore) Delete() error {
	s.mu.Lock()
	s.cookies = make(map[string]storedCookie)
	s.dirty = false
	s.mu.Unlock()

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil
	}
	return os.Remove(s.path)
}
