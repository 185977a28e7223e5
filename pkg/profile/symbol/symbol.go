// Package symbol builds human-readable frame labels out of JVM symbol parts.
package symbol

import (
	"regexp"
	"strings"
)

var (
	packageRe = regexp.MustCompile(`^(.*\.)([^.]+\.[^.]+)$`)
	wordRe    = regexp.MustCompile(`(\w)\w*`)
)

// FormatClass converts a JVM class descriptor into a dotted class name:
// "Ljava/util/ArrayList;" -> "java.util.ArrayList". Descriptors too short to
// carry the wrapping characters are returned as is.
func FormatClass(descriptor string) string {
	if len(descriptor) < 2 {
		return descriptor
	}
	return strings.ReplaceAll(descriptor[1:len(descriptor)-1], "/", ".")
}

// AbbreviatePackage shortens the package part of a fully qualified
// "pkg.Class.method" label: "foo.bar.Class.method" -> "f.b.Class.method".
// Labels without a package part are returned unchanged.
func AbbreviatePackage(label string) string {
	m := packageRe.FindStringSubmatch(label)
	if m == nil {
		return label
	}
	return wordRe.ReplaceAllString(m[1], "$1") + m[2]
}
