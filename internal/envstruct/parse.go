// Package envstruct populates configuration structs from environment variables.
package envstruct

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
)

var (
	ErrEnvNotSet    = errors.New("environment variable not set")
	ErrInvalidValue = errors.New("invalid value")
)

// Populate sets the tagged fields of the struct pointed to by v.
//
// lookupEnv has the signature of [os.LookupEnv]. A field tagged `env:"NAME"` receives the value of NAME,
// falling back to the `envDefault:"value"` tag. A missing variable without default yields ErrEnvNotSet.
// Supported field kinds are string, bool, int and float64.
func Populate(v any, lookupEnv func(string) (string, bool)) error {
	ptrRef := reflect.ValueOf(v)
	if ptrRef.Kind() != reflect.Pointer {
		return fmt.Errorf("%w: not pointer: %v", ErrInvalidValue, v)
	}
	ref := ptrRef.Elem()
	if ref.Kind() != reflect.Struct {
		return fmt.Errorf("%w: not struct: %v", ErrInvalidValue, v)
	}

	var errs []error
	for i := range ref.NumField() {
		field := ref.Field(i)
		fieldType := ref.Type().Field(i)
		name, ok := fieldType.Tag.Lookup("env")
		if !ok {
			continue
		}
		if !field.CanSet() {
			errs = append(errs, fmt.Errorf("%w: cannot set field %s", ErrInvalidValue, fieldType.Name))
			continue
		}
		raw, err := lookupWithDefault(name, fieldType.Tag, lookupEnv)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err = set(field, raw); err != nil {
			errs = append(errs, fmt.Errorf("%w: field %s from %s: %w", ErrInvalidValue, fieldType.Name, name, err))
		}
	}
	return errors.Join(errs...)
}

func set(field reflect.Value, raw string) error {
	switch field.Kind() { //nolint:exhaustive // unsupported kinds fall through to default.
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("parse bool: %w", err)
		}
		field.SetBool(b)
	case reflect.Int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("parse int: %w", err)
		}
		field.SetInt(int64(n))
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("parse float: %w", err)
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}

func lookupWithDefault(name string, tag reflect.StructTag, lookupEnv func(string) (string, bool)) (string, error) {
	if value, ok := lookupEnv(name); ok {
		return value, nil
	}
	if value, ok := tag.Lookup("envDefault"); ok {
		return value, nil
	}
	return "", fmt.Errorf("%w: %s", ErrEnvNotSet, name)
}
