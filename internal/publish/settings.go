package publish

import (
	"fmt"
	"strconv"
)

type settingKind int

const (
	settingBool settingKind = iota
	settingInt
	settingString
)

// knownSettings mirrors the configurable Datasette settings and their types.
// Values are validated and coerced before they reach the generated entrypoint.
var knownSettings = map[string]settingKind{
	"allow_csv_stream":            settingBool,
	"allow_download":              settingBool,
	"allow_facet":                 settingBool,
	"allow_signed_tokens":         settingBool,
	"base_url":                    settingString,
	"cache_size_kb":               settingInt,
	"default_cache_ttl":           settingInt,
	"default_facet_size":          settingInt,
	"default_page_size":           settingInt,
	"facet_suggest_time_limit_ms": settingInt,
	"facet_time_limit_ms":         settingInt,
	"force_https_urls":            settingBool,
	"max_csv_mb":                  settingInt,
	"max_returned_rows":           settingInt,
	"max_signed_tokens_ttl":       settingInt,
	"num_sql_threads":             settingInt,
	"sql_time_limit_ms":           settingInt,
	"suggest_facets":              settingBool,
	"template_debug":              settingBool,
	"trace_debug":                 settingBool,
	"truncate_cells_html":         settingInt,
}

// coerceSetting validates a raw setting pair and returns its typed value.
func coerceSetting(name, value string) (any, error) {
	kind, ok := knownSettings[name]
	if !ok {
		return nil, fmt.Errorf("%q is not a valid setting name", name)
	}

	switch kind {
	case settingBool:
		switch value {
		case "on", "true", "1":
			return true, nil
		case "off", "false", "0":
			return false, nil
		}
		return nil, fmt.Errorf("%q should be on/off/true/false/1/0", name)
	case settingInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%q should be an integer", name)
		}
		return n, nil
	default:
		return value, nil
	}
}

// resolveSettings coerces the raw pairs into a typed map, rejecting unknown
// names, bad values, and duplicates.
func resolveSettings(pairs []Setting) (map[string]any, error) {
	settings := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		value, err := coerceSetting(pair.Name, pair.Value)
		if err != nil {
			return nil, configErr(err.Error(), "--setting")
		}
		if _, dup := settings[pair.Name]; dup {
			return nil, configErr(fmt.Sprintf("setting %q given more than once", pair.Name), "--setting")
		}
		settings[pair.Name] = value
	}
	return settings, nil
}
