// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

package command

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/staranto/shellcache/internal/output"
	"github.com/staranto/shellcache/internal/store"
)

type FlagValidatorType func(any) error

func FlagValidators(value any, validators ...FlagValidatorType) error {
	for _, v := range validators {
		if err := v(value); err != nil {
			return err
		}
	}
	return nil
}

// JammedFlagValidator verifies that the arg following a flag does not begin
// with '--'.  urfave/cli allows this and I don't see how to turn it off.
func JammedFlagValidator(value any) error {
	if strings.HasPrefix(value.(string), "--") {
		return errors.New("must not begin with '--'")
	}
	return nil
}

func OutputValidator(value any) error {
	if !slices.Contains(output.Formats, value.(string)) {
		return fmt.Errorf("must be one of %v", output.Formats)
	}
	return nil
}

var storeKinds = []string{"memory", "disk", "sqlite", "s3"}

func StoreKindValidator(value any) error {
	if !slices.Contains(storeKinds, value.(string)) {
		return fmt.Errorf("must be one of %v", storeKinds)
	}
	return nil
}

// GenerationValidator allows empty so a missing generation is reported by
// the command that needs one.
func GenerationValidator(value any) error {
	s := value.(string)
	if s == "" {
		return nil
	}
	return store.ValidName(s)
}

func OriginValidator(value any) error {
	u, err := url.Parse(value.(string))
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an absolute http or https URL")
	}
	return nil
}
