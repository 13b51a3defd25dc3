// Package mysql holds the MySQL plumbing shared by the job store and the
// evidence archive index: connection pooling, embedded schema migrations and
// the archive repository.
package mysql
