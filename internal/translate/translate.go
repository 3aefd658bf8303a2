// Package translate expands path templates made of <KEY> placeholders and
// strftime date directives.
package translate

import (
	"regexp"
	"time"

	"github.com/ncruces/go-strftime"
)

var keyRe = regexp.MustCompile(`<([^<>\s]+)>`)

// Translate expands tmpl. When epoch is non-zero, date directives such as
// %Y, %j or %H are formatted against it first. Then every <KEY> token found
// in table is replaced by its value. Unknown keys are left untouched so that
// partially specified templates survive multi-stage chaining.
func Translate(tmpl string, table map[string]string, epoch time.Time) string {
	out := tmpl
	if !epoch.IsZero() {
		out = strftime.Format(out, epoch)
	}
	if len(table) == 0 {
		return out
	}
	return keyRe.ReplaceAllStringFunc(out, func(tok string) string {
		if v, ok := table[tok[1:len(tok)-1]]; ok {
			return v
		}
		return tok
	})
}

// Keys returns the placeholder names still present in s, in order of appearance.
func Keys(s string) []string {
	var keys []string
	for _, m := range keyRe.FindAllStringSubmatch(s, -1) {
		keys = append(keys, m[1])
	}
	return keys
}
