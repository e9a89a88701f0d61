// Package commands defines the myberkeley CLI.
//
// Commands
//
//   - serve           Run the HTTP endpoints and the background jobs
//   - migrate-caldav  Copy calendars from another CalDAV server
//   - provision       Load users from the campus data warehouse
//   - migrate         Run the repository migrators
//
// Every command reads the YAML file named by --config and opens the
// repository it describes before running.
package commands
