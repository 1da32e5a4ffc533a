// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package handlers

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Validatable is implemented by option structs that have constraints beyond
// what decoding can express (required fields, enums).
type Validatable interface {
	Validate() error
}

// DecodeOptions converts a raw options payload from the configuration into a
// typed options struct. Unknown keys are an error so typos in config don't
// pass silently; scalar types are coerced the way YAML users expect ("1" into
// int, "true" into bool). When out implements Validatable its Validate is
// the last step.
func DecodeOptions(raw map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("build options decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	if v, ok := out.(Validatable); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid options: %w", err)
		}
	}
	return nil
}
