package pathfix

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnparseableArgument is returned for arguments that look like they hold
// a path but match none of the known argument forms.
var ErrUnparseableArgument = errors.New("unknown argument with possible path")

const (
	nameRe        = `\w[\w\-.]*`
	envRe         = `\$` + nameRe + `|\{` + nameRe + `\}`
	placeholderRe = `\{\{` + nameRe + `\}\}(?:` + nameRe + `)?`
	specialRe     = `\.\.?`
	pathNameRe    = `(?:` + nameRe + `|` + specialRe + `|` + placeholderRe + `|` + envRe + `)`
	// A path has at least one separator: "/abs", "//src/root", "rel/".
	pathRe = `(?://?)?` + pathNameRe + `/(?:` + pathNameRe + `/?)*`

	argPrefixRe = `(?:` +
		`-I` +
		`|:` +
		`|--?` + nameRe + `=` +
		`|--?` + nameRe + `=(?:` + nameRe + `=|-\w)` +
		`|-?M\w+\.proto=` +
		`)`
)

var argumentRegexp = regexp.MustCompile(`^(` + argPrefixRe + `?)(\\")?(` + pathRe + `)(\\")?$`)

// FixPathInArgument splits a compiler or tool argument into its flag prefix
// and path, and returns the path as rewritten by fix. Escaped quotes around
// the path are kept: the opening one ends prefix and the closing one ends
// fixed, so prefix+fixed is always the rewritten argument.
//
// Arguments without a path are returned as prefix with an empty fixed path,
// as are paths starting with an environment variable or placeholder.
func FixPathInArgument(arg string, fix func(string) (string, error)) (prefix, fixed string, err error) {
	m := argumentRegexp.FindStringSubmatch(arg)
	if m == nil {
		if strings.Contains(arg, "/") {
			return "", "", fmt.Errorf("%w: %s", ErrUnparseableArgument, arg)
		}
		return arg, "", nil
	}

	path := m[3]
	if path[0] == '$' || path[0] == '{' {
		return arg, "", nil
	}
	fixed, err = fix(path)
	if err != nil {
		return "", "", err
	}
	return m[1] + m[2], fixed + m[4], nil
}
