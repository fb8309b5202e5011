// Package config is the settings module of the site. It declares the database
// connection descriptor, installed apps, middleware order, template backends,
// password hashing policy, email delivery and static file locations, and
// forwards secrets from the environment (or a .env file). Precedence:
// CLI flags > Environment variables > YAML config > Defaults.
package config
