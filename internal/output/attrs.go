// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

package output

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"

	"github.com/staranto/shellcache/internal/config"
)

// Attr adjusts one output column. The --attrs flag carries a comma separated
// list of key[:title[:transform]] specs.
type Attr struct {
	// The row key the spec refers to, or * for every column.
	Key string `yaml:"key"`
	// Should this Attr be included in output or is it just
	// intended for filtering and sorting?
	Include bool `yaml:"include"`
	// Title replaces the column title when set.
	Title string `yaml:"title"`
	// Transformation spec to apply to the output value.
	TransformSpec string `yaml:"transformSpec"`
}

var lengthRe = regexp.MustCompile(`-?\d+`)

// Transform applies the transform spec to value. t converts times to the
// configured timezone, l and u change case, and a number truncates to that
// many runes. A negative number keeps both ends around "..".
func (a *Attr) Transform(value interface{}) interface{} {
	if t, ok := value.(time.Time); ok {
		if strings.ContainsAny(a.TransformSpec, "tT") {
			if local, ok := inZone(t); ok {
				return local.Format(localLayout)
			}
		}
		return value
	}

	result, ok := value.(string)
	if !ok {
		return value
	}

	// Convert UTC time to local.
	if strings.ContainsAny(a.TransformSpec, "tT") {
		t, err := time.Parse(time.RFC3339, result)
		if err != nil {
			log.Debugf("not a time: %s", result)
		} else if local, ok := inZone(t); ok {
			result = local.Format(localLayout)
		}
	}

	// We need to know which case transformation appears last.  This covers the
	// case where there has been a global case transformation prepended to the
	// attrs transformation and, thus, allows the attr's to carry more weight.
	// IOW...  --attrs '*::U,url::l' will be lower case.
	lastL := strings.LastIndexAny(a.TransformSpec, "lL")
	lastU := strings.LastIndexAny(a.TransformSpec, "uU")

	if lastL > lastU {
		result = strings.ToLower(result)
	} else if lastU > lastL {
		result = strings.ToUpper(result)
	}

	// Same logic as above re: case.  The last length wins so a specific length
	// overrides a global one.
	match := lengthRe.FindAllString(a.TransformSpec, -1)
	if len(match) != 0 {
		l, _ := strconv.Atoi(match[len(match)-1])
		result = truncate(result, l)
	}

	return result
}

func truncate(s string, l int) string {
	runes := []rune(s)
	abs := int(math.Abs(float64(l)))
	if len(runes) <= abs {
		return s
	}
	lr := abs/2 - 1
	if l >= 0 || lr < 1 {
		return string(runes[:abs])
	}
	return string(runes[:lr]) + ".." + string(runes[len(runes)-lr:])
}

const localLayout = "2006-01-02T15:04:05MST"

// inZone moves t to the timezone from the config file, falling back to TZ.
// We only convert when specifically told what zone to use.
func inZone(t time.Time) (time.Time, bool) {
	tz, _ := config.GetString("timezone", os.Getenv("TZ"))
	if tz == "" {
		return t, false
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.WithError(err).Debugf("unknown timezone %s", tz)
		return t, false
	}
	return t.In(loc), true
}

type AttrList []Attr

// Return a string representation of the AttrList.  This should match the format
// of the original --attrs flag.
func (a *AttrList) String() string {
	result := make([]string, 0, len(*a))
	for _, attr := range *a {
		key := attr.Key
		if !attr.Include && key != "*" {
			key = "!" + key
		}
		result = append(result, fmt.Sprintf("%s:%s:%s", key, attr.Title, attr.TransformSpec))
	}
	return strings.Join(result, ",")
}

// Set parses each spec of an --attrs value and adds it to the AttrList.
func (a *AttrList) Set(value string) error {
	if value == "" || value == "*" {
		return nil
	}

	const (
		keyIdx = iota
		titleIdx
		transformIdx
	)

specloop:
	for _, spec := range strings.Split(value, ",") {
		fields := strings.Split(spec, ":")
		if len(fields) > transformIdx+1 {
			return fmt.Errorf("invalid attr spec %q", spec)
		}

		attr := Attr{Include: true}

		// A leading ! keeps the column available to --filter and --sort but
		// drops it from the output.
		attr.Key = strings.TrimSpace(fields[keyIdx])
		if strings.HasPrefix(attr.Key, "!") {
			attr.Include = false
			attr.Key = attr.Key[1:]
		}
		if attr.Key == "" {
			return fmt.Errorf("invalid attr spec %q", spec)
		}
		if attr.Key == "*" {
			attr.Include = false
		}

		if len(fields) > titleIdx {
			attr.Title = strings.TrimSpace(fields[titleIdx])
		}
		if len(fields) > transformIdx {
			attr.TransformSpec = strings.TrimSpace(fields[transformIdx])
		}

		// A repeated key updates the existing Attr.
		for i := range *a {
			if (*a)[i].Key == attr.Key {
				(*a)[i] = attr
				continue specloop
			}
		}

		*a = append(*a, attr)
	}

	return nil
}

// SetGlobalTransformSpec inserts a global transform spec into the front of all
// attrs in the list.
func (alist *AttrList) SetGlobalTransformSpec() error {
	spec := alist.globalSpec()

	// Return early if there is no global transform spec.
	if spec == "" {
		return nil
	}

	for a := range *alist {
		if (*alist)[a].Key == "*" {
			continue
		}
		(*alist)[a].TransformSpec = spec + "," + (*alist)[a].TransformSpec
	}

	return nil
}

// globalSpec returns the transform of the first * attr.
func (alist *AttrList) globalSpec() string {
	for a := range *alist {
		if (*alist)[a].Key == "*" {
			return (*alist)[a].TransformSpec
		}
	}
	return ""
}

func (a *AttrList) Type() string {
	return "list"
}

// ApplyAttrs returns cols adjusted by an --attrs spec. Columns keep their
// order; hidden ones are dropped. Naming an unknown column is an error.
func ApplyAttrs(cols []Column, spec string) ([]Column, error) {
	var list AttrList
	if err := list.Set(spec); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return cols, nil
	}
	if err := list.SetGlobalTransformSpec(); err != nil {
		return nil, err
	}

	byKey := make(map[string]Attr, len(list))
	for _, attr := range list {
		if attr.Key == "*" {
			continue
		}
		if !hasColumn(cols, attr.Key) {
			return nil, fmt.Errorf("unknown column %q", attr.Key)
		}
		byKey[attr.Key] = attr
	}

	global := Attr{Key: "*", TransformSpec: list.globalSpec()}

	out := make([]Column, 0, len(cols))
	for _, c := range cols {
		attr, ok := byKey[c.Key]
		if !ok {
			attr = global
			attr.Include = true
		}
		if !attr.Include {
			continue
		}
		if attr.Title != "" {
			c.Title = attr.Title
		}
		if attr.TransformSpec != "" {
			c.Transform = attr.Transform
		}
		out = append(out, c)
	}
	return out, nil
}

func hasColumn(cols []Column, key string) bool {
	for _, c := range cols {
		if c.Key == key {
			return true
		}
	}
	return false
}
