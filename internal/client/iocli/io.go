// Package iocli ввод и вывод команд docsync.
package iocli

//go:generate moq -out io_mock.go . IO

// IO вывод результатов команд и чтение подтверждений.
// Write позволяет передавать IO как io.Writer (cobra, json.Encoder).
type IO interface {
	Println(a ...any)
	Printf(format string, a ...any)
	ReadInput(prompt string) (string, error)
	Write(p []byte) (n int, err error)
}
