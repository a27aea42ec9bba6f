// Package config loads, validates and hot-reloads the exporter
// configuration. A YAML file is the primary source (Load); deployments
// without one can configure everything through environment variables
// (FromEnv). Secrets — the appliance password, the scrape API key — are
// never stored in the file; the file names the environment variable that
// holds them.
package config
