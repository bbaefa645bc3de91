package internal

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sensiblebit/devcert"
)

// ReadPasswordFile returns the non-blank lines of a file, trimmed. Lines
// starting with # are comments.
func ReadPasswordFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading password file %s: %w", path, err)
	}
	var passwords []string
	for line := range strings.Lines(string(data)) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		passwords = append(passwords, line)
	}
	return passwords, nil
}

// ReadSecretFile returns the first password in a file, so a secret can be
// passed without appearing in the process list.
func ReadSecretFile(path string) (string, error) {
	passwords, err := ReadPasswordFile(path)
	if err != nil {
		return "", err
	}
	if len(passwords) == 0 {
		return "", errors.New("password file " + path + " holds no password")
	}
	return passwords[0], nil
}

// CandidatePasswords is the list tried against encrypted keys and
// keystores: the defaults, then flag passwords, then those in file, each once.
func CandidatePasswords(flagPasswords []string, file string) ([]string, error) {
	extra := append([]string(nil), flagPasswords...)
	if file != "" {
		fromFile, err := ReadPasswordFile(file)
		if err != nil {
			return nil, err
		}
		extra = append(extra, fromFile...)
	}
	return devcert.DeduplicatePasswords(extra), nil
}
