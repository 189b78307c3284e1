// Package chromestore adapts the browser's chrome.bookmarks API to
// bookmarks.Store. It only works in a js/wasm build running inside an
// extension; elsewhere New returns ErrUnsupported.
package chromestore

import "errors"

// ErrUnsupported is returned outside a browser extension.
var ErrUnsupported = errors.New("chromestore: chrome.bookmarks requires a js/wasm extension build")
