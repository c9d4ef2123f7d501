// Package commands implements the tacbridge command line: serve runs the
// bridge, migrate prepares a Postgres database and watch follows the
// conversion events published to Kafka.
package commands
