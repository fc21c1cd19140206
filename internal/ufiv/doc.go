// Package ufiv reads and writes universal board documents.
//
// Output is deterministic: object keys are sorted, strings are NFC
// normalised, numbers keep their shortest round-trip form, indentation is
// one space and the file ends with a newline. The same board always
// produces the same bytes, which keeps golden files and diffs stable.
//
// WriteFile never leaves a partially written destination behind.
package ufiv
