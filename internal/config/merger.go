package config

// MergeSettings merges two Settings objects.
// Values from 'overlay' override values in 'base'.
// For maps, overlay values are merged with base values.
func MergeSettings(base, overlay *Settings) *Settings {
	if base == nil {
		return overlay
	}
	if overlay == nil {
		return base
	}

	result := NewSettings()

	result.Endpoints = Endpoints{
		BaseURL: mergeString(base.Endpoints.BaseURL, overlay.Endpoints.BaseURL),
		Stream:  mergeString(base.Endpoints.Stream, overlay.Endpoints.Stream),
		Sandbox: mergeString(base.Endpoints.Sandbox, overlay.Endpoints.Sandbox),
		Persist: mergeString(base.Endpoints.Persist, overlay.Endpoints.Persist),
	}

	result.Engine = mergeString(base.Engine, overlay.Engine)
	result.Style = mergeString(base.Style, overlay.Style)
	result.MediaCache = mergeString(base.MediaCache, overlay.MediaCache)
	result.SessionDir = mergeString(base.SessionDir, overlay.SessionDir)
	result.PlanDir = mergeString(base.PlanDir, overlay.PlanDir)
	result.RequestTimeout = mergeString(base.RequestTimeout, overlay.RequestTimeout)

	// Merge Headers (map merge)
	result.Headers = mergeStringMaps(base.Headers, overlay.Headers)

	// Merge Env (map merge)
	result.Env = mergeStringMaps(base.Env, overlay.Env)

	return result
}

// mergeString returns overlay if set, otherwise base.
func mergeString(base, overlay string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

// mergeStringMaps merges two map[string]string.
func mergeStringMaps(base, overlay map[string]string) map[string]string {
	result := make(map[string]string)

	// Copy base
	for k, v := range base {
		result[k] = v
	}

	// Overlay
	for k, v := range overlay {
		result[k] = v
	}

	return result
}
