// Package logger configures the application's structured logging.
package logger
