package crawler

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
)

// prohibitedChars are replaced with '_' when turning a title into a directory name
const prohibitedChars = `<>"/\|?*:. `

// untitledDir is used when a title sanitizes to nothing
const untitledDir = "untitled"

// SanitizeDirName maps an article title to a filesystem-safe directory name.
// Every prohibited or control character becomes an underscore.
// Example: "Foo/Bar: Baz 2024" -> "Foo_Bar__Baz_2024"
func SanitizeDirName(title string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(prohibitedChars, r) {
			return '_'
		}
		return r
	}, title)

	if name == "" {
		return untitledDir
	}
	return name
}

// ImageFileName returns the substring after the last '/' of an image reference
func ImageFileName(ref string) (string, error) {
	name := ref[strings.LastIndex(ref, "/")+1:]
	switch name {
	case "", ".", "..":
		return "", fmt.Errorf("no usable file name in %q", ref)
	}
	if strings.ContainsRune(name, '\\') {
		return "", fmt.Errorf("file name %q contains a path separator", name)
	}
	return name, nil
}

// ResolveURL resolves ref against base. Absolute refs are returned unchanged,
// protocol-relative ("//host/x") and relative refs inherit from base.
func ResolveURL(base *url.URL, ref string) (string, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid reference %q: %w", ref, err)
	}
	return base.ResolveReference(parsed).String(), nil
}

// ResolveOutputRoot returns the directory article folders are created in.
// If the configured directory does not exist, the working directory is used.
func ResolveOutputRoot(dir string) string {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		logrus.Warnf("Output directory %q does not exist, writing into the working directory", dir)
		return "."
	}
	return dir
}
