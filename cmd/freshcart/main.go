// README: Entry point; cobra root with serve, migrate, sweep and seed subcommands.
package main

func main() {
	Execute()
}
