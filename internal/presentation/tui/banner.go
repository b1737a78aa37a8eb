package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text, color string
}{
	{`            _           _                       _`, "#818cf8"},
	{` _ __ ___ (_)_ __   __| | __ _ _ __ __ _ _ __ | |__`, "#a78bfa"},
	{`| '_ ' _ \| | '_ \ / _' |/ _' | '__/ _' | '_ \| '_ \`, "#c084fc"},
	{`| | | | | | | | | | (_| | (_| | | | (_| | |_) | | | |`, "#e879f9"},
	{`|_| |_| |_|_|_| |_|\__,_|\__, |_|  \__,_| .__/|_| |_|`, "#f472b6"},
	{`                         |___/          |_|`, "#fb7185"},
}

// PrintBanner writes the mindgraph banner and version to w, colored for the
// terminal's profile.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
