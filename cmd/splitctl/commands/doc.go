// Package commands implements the splitctl command-line tool: allocating a
// bill described in a YAML file and extracting a receipt image once.
package commands
