// Package config reads process environment configuration: the target
// environment (dev or prod), warehouse database names, catalog file
// location and staging defaults.
package config
