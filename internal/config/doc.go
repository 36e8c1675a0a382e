// Package config defines the settings shared by fall-guard and fall-guard-ctl
// and provides helpers to load, validate and save them in YAML format.
//
// Load starts from Default and overlays the file, so a settings file only
// needs the values that differ. Validate fills the remaining defaults.
package config
