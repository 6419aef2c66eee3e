// Package prompt implements the ways the user is asked to confirm an
// update:
//
//   - [HeadlessUI] logs the prompt and answers with a fixed decision.
//   - [TerminalUI] shows a yes/no dialog on a terminal.
//   - [APIUI] keeps the prompt pending until it is answered over HTTP.
//
// All of them satisfy updater.UpdateUI.
package prompt
