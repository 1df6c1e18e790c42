package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/dmitrijs2005/databazaar/internal/common"
	"github.com/dmitrijs2005/databazaar/internal/cryptox"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// GetSimpleText prints a prompt to w and reads a single line of input from reader.
// If EOF occurs after some input was read, the partial line is returned.
func GetSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetSecret prints prompt to w and reads a line from the terminal without
// echo. The caller wipes the result.
func GetSecret(w io.Writer, prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return nil, err
	}
	secret, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return secret, nil
}

// resolveKey parses the hex key given on the command line or, when there is
// none, asks for it.
func resolveKey(w io.Writer, flagValue string) ([]byte, error) {
	if flagValue != "" {
		return cryptox.ParseKey(flagValue)
	}

	raw, err := GetSecret(w, "Enter asset key (hex): ")
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(raw)

	return cryptox.ParseKey(strings.TrimSpace(string(raw)))
}
