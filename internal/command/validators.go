// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"slices"

	"github.com/urfave/cli/v3"

	"github.com/subfish/subfish/internal/output"
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

// GlobalFlagsValidator checks flag combinations no single flag validator can.
func GlobalFlagsValidator(ctx context.Context, c *cli.Command) error {
	if c.String("s3-key") == "" && c.String("s3-bucket") != "" {
		return fmt.Errorf("--s3-bucket needs a non-empty --s3-key")
	}
	return nil
}

// OneOf returns a validator accepting only the given strings.
func OneOf(valid ...string) FlagValidatorType {
	return func(value any) error {
		s, _ := value.(string)
		if !slices.Contains(valid, s) {
			return fmt.Errorf("must be one of %v", valid)
		}
		return nil
	}
}

func OutputValidator(value any) error {
	return OneOf(output.Formats...)(value)
}
