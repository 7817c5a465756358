package types

import (
	"path"
	"strings"
)

// AocPrefix is the canonical prefix of downloadable-content resources.
const AocPrefix = "Aoc/0010/"

// NestSeparator separates archive levels in a NestedPath.
const NestSeparator = "//"

type rootPrefix struct {
	from, to string
}

var littlePrefixes = []rootPrefix{
	{"atmosphere/titles/", ""},
	{"atmosphere/contents/", ""},
	{"01007EF00011E000/romfs/", ""},
	{"01007ef00011e000/romfs/", ""},
	{"01007EF00011E001/romfs", "Aoc/0010"},
	{"01007EF00011E002/romfs", "Aoc/0010"},
	{"01007EF00011F001/romfs", "Aoc/0010"},
	{"01007EF00011F002/romfs", "Aoc/0010"},
	{"01007ef00011e001/romfs", "Aoc/0010"},
	{"01007ef00011e002/romfs", "Aoc/0010"},
	{"01007ef00011f001/romfs", "Aoc/0010"},
	{"01007ef00011f002/romfs", "Aoc/0010"},
}

var bigPrefixes = []rootPrefix{
	{"Content/", ""},
	{"content/", ""},
	{"aoc/content", "Aoc"},
	{"aoc", "Aoc"},
}

// Canonicalize maps a platform path to its canonical form. Backslashes
// become slashes, the platform root is stripped (DLC roots are rewritten
// to Aoc/0010), and the compression marker is dropped from extensions so
// "Foo.sbactorpack" and "Foo.bactorpack" name the same resource.
func Canonicalize(p string, e Endian) string {
	return strings.ReplaceAll(RootRelative(p, e), ".s", ".")
}

// RootRelative strips the platform root from p like Canonicalize but
// keeps the file name as stored, compression marker included.
func RootRelative(p string, e Endian) string {
	rel := strings.ReplaceAll(p, `\`, "/")
	rel = strings.TrimPrefix(rel, "/")
	prefixes := bigPrefixes
	if e == Little {
		prefixes = littlePrefixes
	}
	for _, rp := range prefixes {
		if strings.HasPrefix(rel, rp.from) {
			rel = rp.to + strings.TrimPrefix(rel, rp.from)
		}
	}
	return rel
}

// Ext returns the extension of p without the leading dot.
func Ext(p string) string {
	return strings.TrimPrefix(path.Ext(p), ".")
}

// Stem returns the file name of p up to its first dot.
func Stem(p string) string {
	base := path.Base(p)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		return base[:i]
	}
	return base
}

// IsCompressed reports whether the name of p marks its content as
// compressed: the extension starts with "s", except for plain "sarc".
func IsCompressed(p string) bool {
	ext := Ext(p)
	return len(ext) > 1 && ext[0] == 's' && ext != "sarc"
}

// IsAoc reports whether canonical path p belongs to downloadable content.
func IsAoc(p string) bool {
	return strings.HasPrefix(p, AocPrefix)
}

// NestedPath addresses a resource inside up to MaxArchiveDepth-1
// enclosing archives. Parts[0] is the outermost archive and the last
// part is the resource itself.
type NestedPath struct {
	Parts []string
}

// ParseNestedPath splits s on NestSeparator.
func ParseNestedPath(s string) NestedPath {
	return NestedPath{Parts: strings.Split(s, NestSeparator)}
}

// Nest appends member to the enclosing path p.
func (p NestedPath) Nest(member string) NestedPath {
	parts := make([]string, 0, len(p.Parts)+1)
	parts = append(parts, p.Parts...)
	return NestedPath{Parts: append(parts, member)}
}

// Depth is the number of enclosing archives.
func (p NestedPath) Depth() int {
	if len(p.Parts) == 0 {
		return 0
	}
	return len(p.Parts) - 1
}

// Parent returns the path of the innermost enclosing archive.
func (p NestedPath) Parent() (NestedPath, bool) {
	if len(p.Parts) < 2 {
		return NestedPath{}, false
	}
	return NestedPath{Parts: p.Parts[:len(p.Parts)-1]}, true
}

// Leaf is the innermost path component.
func (p NestedPath) Leaf() string {
	if len(p.Parts) == 0 {
		return ""
	}
	return p.Parts[len(p.Parts)-1]
}

// String joins the parts with NestSeparator.
func (p NestedPath) String() string {
	return strings.Join(p.Parts, NestSeparator)
}

// OutputPath maps a root-relative resource name to its location under a
// deployment root for byte order e. Names under AocPrefix land in the
// DLC root, everything else in the content root.
func OutputPath(name string, e Endian) string {
	if rest, ok := strings.CutPrefix(name, AocPrefix); ok {
		return path.Join(e.AocRoot(), rest)
	}
	return path.Join(e.ContentRoot(), name)
}
