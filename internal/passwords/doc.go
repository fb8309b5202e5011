// Package passwords implements the password hasher chain and the password
// validators. Encoded hashes use the "<algorithm>$<params>$<salt>$<hash>"
// layout so accounts migrated from the previous site keep working.
package passwords
