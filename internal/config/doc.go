// Package config loads the YAML configuration for the communication client.
//
// Values may reference environment variables as ${VAR}; they are expanded
// before parsing. LoadAndValidate applies the Default* values to unset
// fields and then checks the result.
package config
