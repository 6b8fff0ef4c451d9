package http

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// fileCookieJar delegates matching to net/http/cookiejar and mirrors every
// cookie it receives to a JSON file so sessions survive restarts.
type fileCookieJar struct {
	mu     sync.Mutex
	path   string
	jar    *cookiejar.Jar
	stored map[string][]storedCookie
}

type storedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"httpOnly,omitempty"`
}

func newFileCookieJar(path string) (*fileCookieJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	j := &fileCookieJar{
		path:   path,
		jar:    jar,
		stored: make(map[string][]storedCookie),
	}
	if err := j.load(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *fileCookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if u == nil || len(cookies) == 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.SetCookies(u, cookies)

	origin := originOf(u)
	now := time.Now()
	list := j.stored[origin]
	for _, c := range cookies {
		list = removeCookie(list, c.Name, c.Path)
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(now)) {
			continue
		}
		sc := storedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		if c.MaxAge > 0 {
			sc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		list = append(list, sc)
	}
	if len(list) == 0 {
		delete(j.stored, origin)
	} else {
		j.stored[origin] = list
	}

	_ = j.save()
}

func (j *fileCookieJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

func (j *fileCookieJar) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	j.jar = jar
	j.stored = make(map[string][]storedCookie)
	if j.path != "" {
		if err := os.Remove(j.path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (j *fileCookieJar) load() error {
	if j.path == "" {
		return nil
	}
	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var stored map[string][]storedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		return err
	}

	now := time.Now()
	for origin, list := range stored {
		u, err := url.Parse(origin)
		if err != nil {
			continue
		}
		var live []storedCookie
		var cookies []*http.Cookie
		for _, sc := range list {
			if !sc.Expires.IsZero() && sc.Expires.Before(now) {
				continue
			}
			live = append(live, sc)
			cookies = append(cookies, &http.Cookie{
				Name:     sc.Name,
				Value:    sc.Value,
				Domain:   sc.Domain,
				Path:     sc.Path,
				Expires:  sc.Expires,
				Secure:   sc.Secure,
				HttpOnly: sc.HttpOnly,
			})
		}
		if len(live) == 0 {
			continue
		}
		j.jar.SetCookies(u, cookies)
		j.stored[origin] = live
	}
	return nil
}

func (j *fileCookieJar) save() error {
	if j.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(j.stored, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(j.path, data, 0o600)
}

func originOf(u *url.URL) string {
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + strings.ToLower(u.Host)
}

func removeCookie(list []storedCookie, name, path string) []storedCookie {
	out := list[:0]
	for _, sc := range list {
		if strings.EqualFold(sc.Name, name) && sc.Path == path {
			continue
		}
		out = append(out, sc)
	}
	return out
}
