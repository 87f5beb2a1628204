package prompt

import "fmt"

// Scripted is a Prompter that replays canned answers in order.
type Scripted struct {
	Inputs    []string
	Passwords []string
	Confirms  []bool
	Selects   []int

	// Asked records every title in the order it was asked.
	Asked []string
}

func (s *Scripted) Input(title, def string) (string, error) {
	s.Asked = append(s.Asked, title)
	if len(s.Inputs) == 0 {
		return "", fmt.Errorf("%s: %w", title, ErrAborted)
	}
	v := s.Inputs[0]
	s.Inputs = s.Inputs[1:]
	if v == "" {
		v = def
	}
	return v, nil
}

func (s *Scripted) Password(title string) (string, error) {
	s.Asked = append(s.Asked, title)
	if len(s.Passwords) == 0 {
		return "", fmt.Errorf("%s: %w", title, ErrAborted)
	}
	v := s.Passwords[0]
	s.Passwords = s.Passwords[1:]
	return v, nil
}

func (s *Scripted) Confirm(question string, def bool) (bool, error) {
	s.Asked = append(s.Asked, question)
	if len(s.Confirms) == 0 {
		return def, nil
	}
	v := s.Confirms[0]
	s.Confirms = s.Confirms[1:]
	return v, nil
}

func (s *Scripted) Select(title string, options []string, def int) (int, error) {
	s.Asked = append(s.Asked, title)
	if len(s.Selects) == 0 {
		return def, nil
	}
	v := s.Selects[0]
	s.Selects = s.Selects[1:]
	if v < 0 || v >= len(options) {
		return 0, fmt.Errorf("%s: choice %d out of range", title, v)
	}
	return v, nil
}
