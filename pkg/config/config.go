package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Validator interface allows config structs to implement custom validation logic.
// If a config struct implements this interface, validation will be automatically
// called after loading configuration from files and environment variables.
type Validator interface {
	Validate() error
}

// setField parses raw into field according to its kind.
func setField(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		duration, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("failed to convert %s to duration: %w", raw, err)
		}
		field.SetInt(int64(duration))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int64:
		intVal, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to convert %s to int: %w", raw, err)
		}
		field.SetInt(intVal)
	case reflect.Float64, reflect.Float32:
		floatVal, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("failed to convert %s to float: %w", raw, err)
		}
		field.SetFloat(floatVal)
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("failed to convert %s to bool: %w", raw, err)
		}
		field.SetBool(boolVal)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		values := strings.Split(raw, ",")
		slice := reflect.MakeSlice(field.Type(), len(values), len(values))
		for i, v := range values {
			slice.Index(i).SetString(strings.TrimSpace(v))
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}

// walkFields calls fn for every non-struct leaf field, descending into nested structs.
func walkFields(val reflect.Value, fn func(field reflect.Value, meta reflect.StructField) error) error {
	var result error
	typeOfT := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		meta := typeOfT.Field(i)
		if !meta.IsExported() {
			continue
		}

		if field.Kind() == reflect.Struct && field.Type() != durationType {
			if err := walkFields(field, fn); err != nil {
				result = multierror.Append(result, err)
			}
			continue
		}

		if err := fn(field, meta); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

func applyDefaults(val reflect.Value) error {
	return walkFields(val, func(field reflect.Value, meta reflect.StructField) error {
		defaultTag, ok := meta.Tag.Lookup("default")
		if !ok || defaultTag == "" {
			return nil
		}
		return setField(field, defaultTag)
	})
}

func applyEnv(val reflect.Value) error {
	return walkFields(val, func(field reflect.Value, meta reflect.StructField) error {
		tag := meta.Tag.Get("env")
		if tag == "" {
			return nil
		}
		envVal, ok := os.LookupEnv(tag)
		if !ok || envVal == "" {
			return nil
		}
		if err := setField(field, envVal); err != nil {
			return fmt.Errorf("env %s: %w", tag, err)
		}
		return nil
	})
}

// checkConstraints enforces required, min and max tags.
func checkConstraints(val reflect.Value) error {
	return walkFields(val, func(field reflect.Value, meta reflect.StructField) error {
		var result error
		required := strings.ToLower(meta.Tag.Get("required"))
		if (required == "true" || required == "1") && field.IsZero() {
			result = multierror.Append(result, fmt.Errorf("required field env:%s / yaml:%s is missing",
				meta.Tag.Get("env"), meta.Tag.Get("yaml")))
		}

		if field.Kind() != reflect.Int && field.Kind() != reflect.Int64 {
			return result
		}
		if field.Type() == durationType {
			return result
		}
		name := yamlName(meta)
		if minTag, ok := meta.Tag.Lookup("min"); ok {
			minVal, err := strconv.ParseInt(minTag, 10, 64)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: bad min tag %q", name, minTag))
			} else if field.Int() < minVal {
				result = multierror.Append(result, fmt.Errorf("%s must be >= %d, got %d", name, minVal, field.Int()))
			}
		}
		if maxTag, ok := meta.Tag.Lookup("max"); ok {
			maxVal, err := strconv.ParseInt(maxTag, 10, 64)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: bad max tag %q", name, maxTag))
			} else if field.Int() > maxVal {
				result = multierror.Append(result, fmt.Errorf("%s must be <= %d, got %d", name, maxVal, field.Int()))
			}
		}
		return result
	})
}

func yamlName(meta reflect.StructField) string {
	name := strings.Split(meta.Tag.Get("yaml"), ",")[0]
	if name == "" {
		return meta.Name
	}
	return name
}

func finish[T any](dest *T) error {
	val := reflect.ValueOf(dest).Elem()
	if err := applyEnv(val); err != nil {
		return err
	}
	if err := checkConstraints(val); err != nil {
		return err
	}
	if validator, ok := any(*dest).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}
	return nil
}

// GetConfigFromEnvVars loads configuration from defaults and environment variables only.
// It processes struct tags: env, default, required, min, max.
// Example usage:
//
//	var cfg MyConfig
//	err := GetConfigFromEnvVars(&cfg)
func GetConfigFromEnvVars[T any](dest *T) error {
	if err := applyDefaults(reflect.ValueOf(dest).Elem()); err != nil {
		return err
	}
	return finish(dest)
}

// GetConfig loads defaults, then the YAML file, then overlays environment variables.
// ${VAR} references inside the YAML file are expanded from the environment before parsing.
// If filepath is empty, only environment variables are used.
// If allowFileErrors is true, file read/parse errors fall back to env vars only.
// Example usage:
//
//	var cfg MyConfig
//	err := GetConfig(&cfg, "config.yaml", true)
func GetConfig[T any](dest *T, filepath string, allowFileErrors bool) error {
	if filepath == "" {
		return GetConfigFromEnvVars(dest)
	}
	data, err := os.ReadFile(filepath) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		if allowFileErrors {
			return GetConfigFromEnvVars(dest)
		}
		return fmt.Errorf("failed to read file: %w", err)
	}

	if err := applyDefaults(reflect.ValueOf(dest).Elem()); err != nil {
		return err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), dest); err != nil {
		if allowFileErrors {
			var zero T
			*dest = zero
			return GetConfigFromEnvVars(dest)
		}
		return fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	return finish(dest)
}
