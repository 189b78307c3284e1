package switcher

import (
	"go.uber.org/zap"

	"github.com/kittclouds/barswitch/pkg/mirror"
	"github.com/kittclouds/barswitch/pkg/titles"
)

// Options configures a Service. Zero values are replaced by DefaultOptions.
type Options struct {
	// RootTitle is the title of the folder holding every storage folder
	// and the pointer record.
	RootTitle string
	// DefaultName is the collection synthesized on an empty store and the
	// current name assumed before any pointer has been read.
	DefaultName string
	// PointerURL is stored on the pointer record so it never looks like a folder.
	PointerURL string
	// BarTitles and OtherTitles locate the host's fixed folders by title.
	// Position (bar first, other second) is the fallback.
	BarTitles   []string
	OtherTitles []string
	// MoveConcurrency bounds in-flight moves per batch. 1 keeps item order.
	MoveConcurrency int

	Codec   *titles.Codec
	Mirror  mirror.Mirror
	Logger  *zap.Logger
	Metrics *Metrics
}

// DefaultOptions returns the layout written by the Bookmark Bar Switcher extension.
func DefaultOptions() Options {
	return Options{
		RootTitle:       "BookmarkBars",
		DefaultName:     "Default",
		PointerURL:      "http://zoeetrope.com/en/bbs",
		BarTitles:       []string{"Bookmarks bar", "Bookmarks Bar", "Bookmarks Toolbar"},
		OtherTitles:     []string{"Other bookmarks", "Other Bookmarks"},
		MoveConcurrency: 1,
		Codec:           titles.Default(),
		Mirror:          mirror.Nop{},
		Logger:          zap.NewNop(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.RootTitle == "" {
		o.RootTitle = d.RootTitle
	}
	if o.DefaultName == "" {
		o.DefaultName = d.DefaultName
	}
	if o.PointerURL == "" {
		o.PointerURL = d.PointerURL
	}
	if len(o.BarTitles) == 0 {
		o.BarTitles = d.BarTitles
	}
	if len(o.OtherTitles) == 0 {
		o.OtherTitles = d.OtherTitles
	}
	if o.MoveConcurrency <= 0 {
		o.MoveConcurrency = d.MoveConcurrency
	}
	if o.Codec == nil {
		o.Codec = d.Codec
	}
	if o.Mirror == nil {
		o.Mirror = d.Mirror
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	return o
}
