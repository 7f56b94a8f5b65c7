package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"booksearcher/internal/sessioncache"
)

// errQuit ends an interactive prompt without an error.
var errQuit = errors.New("quit")

type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// ask prints label and returns the trimmed reply. EOF and "q" return errQuit.
func (p *prompter) ask(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", err
		}
		if strings.TrimSpace(line) == "" {
			fmt.Fprintln(p.out)
			return "", errQuit
		}
	}
	reply := strings.TrimSpace(line)
	if strings.EqualFold(reply, "q") {
		return "", errQuit
	}
	return reply, nil
}

func (p *prompter) chooseKind() (sessioncache.Kind, error) {
	fmt.Fprintln(p.out, "What are you looking for?")
	fmt.Fprintln(p.out, "  1) Audiobooks")
	fmt.Fprintln(p.out, "  2) Ebooks")
	fmt.Fprintln(p.out, "  3) Both")
	fmt.Fprintln(p.out, "  q) Quit")
	for {
		reply, err := p.ask("Choice [1-3]: ")
		if err != nil {
			return "", err
		}
		switch reply {
		case "1":
			return sessioncache.KindAudiobooks, nil
		case "2":
			return sessioncache.KindEbooks, nil
		case "3", "":
			return sessioncache.KindBoth, nil
		}
		fmt.Fprintln(p.out, "Please choose 1, 2, 3, or q to quit")
	}
}

func (p *prompter) searchTerm() (string, error) {
	fmt.Fprintln(p.out, "Search by title, author or series. Type q to quit.")
	for {
		reply, err := p.ask("Search: ")
		if err != nil {
			return "", err
		}
		if reply != "" {
			return reply, nil
		}
		fmt.Fprintln(p.out, "Please enter a search term")
	}
}
