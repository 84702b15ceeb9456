package oauth

import "github.com/pkg/browser"

// Opener shows a URL to the user, normally in their default browser.
type Opener interface {
	Open(url string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(url string) error

func (f OpenerFunc) Open(url string) error { return f(url) }

// SystemBrowser opens URLs with the platform's default browser.
type SystemBrowser struct{}

func (SystemBrowser) Open(url string) error { return browser.OpenURL(url) }
