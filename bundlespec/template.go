/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
package bundlespec

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Template derives a path from a bundle key.
// Supported variables:
//   - {key}  - The bundle key as matched; directory keys keep their trailing slash
//   - {dir}  - Directory containing the key
//   - {base} - Last element of the key
//   - {name} - {base} without its extension
//   - {ext}  - Extension of {base}, including the dot
//   - {stem} - The key with the bundle extension removed
type Template struct {
	pattern   string
	variables []string
}

var variablePattern = regexp.MustCompile(`\{(\w+)\}`)

var templateVariables = map[string]bool{
	"key":  true,
	"dir":  true,
	"base": true,
	"name": true,
	"ext":  true,
	"stem": true,
}

// ParseTemplate parses a path template.
func ParseTemplate(pattern string) (*Template, error) {
	if pattern == "" {
		return nil, fmt.Errorf("template pattern cannot be empty")
	}

	var variables []string
	for _, match := range variablePattern.FindAllStringSubmatch(pattern, -1) {
		if !templateVariables[match[1]] {
			return nil, fmt.Errorf("unknown template variable: {%s}", match[1])
		}
		variables = append(variables, match[1])
	}

	return &Template{pattern: pattern, variables: variables}, nil
}

// IsTemplate reports whether s contains at least one known template variable.
func IsTemplate(s string) bool {
	for _, match := range variablePattern.FindAllStringSubmatch(s, -1) {
		if templateVariables[match[1]] {
			return true
		}
	}
	return false
}

// Expand substitutes the key's parts into the template.
func (t *Template) Expand(key, bundleExtension string) string {
	trimmed := strings.TrimSuffix(key, "/")
	base := path.Base(trimmed)
	ext := path.Ext(base)

	r := strings.NewReplacer(
		"{key}", key,
		"{dir}", path.Dir(trimmed),
		"{base}", base,
		"{name}", strings.TrimSuffix(base, ext),
		"{ext}", ext,
		"{stem}", strings.TrimSuffix(key, bundleExtension),
	)
	return r.Replace(t.pattern)
}

// Pattern returns the original template pattern.
func (t *Template) Pattern() string {
	return t.pattern
}

// Variables returns the variables used in the template, in order of appearance.
func (t *Template) Variables() []string {
	return t.variables
}
