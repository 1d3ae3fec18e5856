// Package cmd implements the osram command tree.
//
// # Architecture
//
// ## Core CLI
//
//   - root.go: App struct, Execute, persistent flags, config and store setup
//   - chat.go: One-shot chat (streaming and non-streaming) and the response cache
//   - provider.go: provider list, current, use and models
//   - config.go: config show, path, edit, set and reset
//
// ## Interactive Mode
//
//   - interactive.go: REPL session, multiline input, saved conversations
//   - slash_commands.go: /model, /provider, /history, /resume, /cd, /tokens and friends
//   - tool_handlers.go: Action mode, where the model picks a file, shell or git
//     action that runs after confirmation
//
// ## Local Projects
//
//   - analyze.go: analyze and report, backed by the stored analysis
//   - fs.go: File operations with protected paths, backups and a trash
//   - run.go: Classified shell commands and the git pass-through
//   - log.go: Operations log, cache purge and store maintenance
//
// # Key Components
//
// ## App
//
// The App struct holds the resolved config, the lazily opened store and
// the session id stamped on every operations log entry. It is created in
// Execute() and shared by all command handlers.
//
// ## Errors
//
// Handlers return errors to Execute, which prints them once and exits 1.
// errSilent marks failures that were already reported (a blocked command,
// a non-zero exit) so they are not printed twice.
//
// # Usage
//
//	func main() {
//	    cmd.Execute()
//	}
package cmd
