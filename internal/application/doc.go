// Package application wires the configured components together: database,
// sessions, password hashers, mail, templates, static files, the middleware
// chain and the chi router behind one http.Server. The main package is left
// with CLI parsing and process lifecycle.
package application
