// Package frontend declares where the component's browser bundle comes
// from: a development server during frontend work, a built bundle on disk
// in release mode, or the embedded debug viewer when neither is given.
package frontend

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path/filepath"
)

//go:embed web/*
var webFS embed.FS

type Mode int

const (
	Embedded Mode = iota
	Dev
	Bundle
)

func (m Mode) String() string {
	switch m {
	case Dev:
		return "dev"
	case Bundle:
		return "bundle"
	default:
		return "embedded"
	}
}

// Source is a declared component frontend.
type Source struct {
	Name string
	Mode Mode
	URL  *url.URL
	Path string
}

// Declare resolves the frontend for component name. Outside release mode
// devURL is proxied; in release mode buildDir is served and an empty
// buildDir selects the embedded viewer.
func Declare(name string, release bool, devURL string, buildDir string) (Source, error) {
	if name == "" {
		return Source{}, errors.New("component name is required")
	}
	if !release {
		u, err := url.Parse(devURL)
		if err != nil {
			return Source{}, fmt.Errorf("invalid dev url %q: %w", devURL, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return Source{}, fmt.Errorf("dev url %q must be http or https", devURL)
		}
		return Source{Name: name, Mode: Dev, URL: u}, nil
	}
	if buildDir == "" {
		return Source{Name: name, Mode: Embedded}, nil
	}
	index := filepath.Join(buildDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		return Source{}, fmt.Errorf("frontend bundle for %q: %w", name, err)
	}
	return Source{Name: name, Mode: Bundle, Path: buildDir}, nil
}

func (s Source) Handler() (http.Handler, error) {
	switch s.Mode {
	case Dev:
		return httputil.NewSingleHostReverseProxy(s.URL), nil
	case Bundle:
		return http.FileServer(http.Dir(s.Path)), nil
	default:
		sub, err := fs.Sub(webFS, "web")
		if err != nil {
			return nil, err
		}
		return http.FileServer(http.FS(sub)), nil
	}
}

func (s Source) String() string {
	switch s.Mode {
	case Dev:
		return fmt.Sprintf("%s (dev %s)", s.Name, s.URL)
	case Bundle:
		return fmt.Sprintf("%s (bundle %s)", s.Name, s.Path)
	default:
		return fmt.Sprintf("%s (embedded)", s.Name)
	}
}
