package builtin

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/bbmesh/bbmesh/internal/plugin"
)

// NumberGuess is the interactive reference plugin: a guess-the-number game
// that holds the input loop until the game ends or the player quits.
type NumberGuess struct {
	// Rand supplies the target; tests pin it for determinism.
	Rand func(min, max int) int
}

func (NumberGuess) Name() string { return "number_guess" }

var exitWords = map[string]bool{
	"exit": true, "quit": true, "menu": true, "bbs": true, "main": true, "0": true,
}

func (p NumberGuess) roll(min, max int) int {
	if p.Rand != nil {
		return p.Rand(min, max)
	}
	return min + rand.Intn(max-min+1)
}

func (p NumberGuess) Start(_ context.Context, pc plugin.Context) (plugin.Response, error) {
	min := settingInt(pc.Settings, "min_number", 1)
	max := settingInt(pc.Settings, "max_number", 100)
	attempts := settingInt(pc.Settings, "max_attempts", 7)
	if max <= min {
		max = min + 99
	}

	state := map[string]any{
		"target":       p.roll(min, max),
		"attempts":     0,
		"max_attempts": attempts,
		"min":          min,
		"max":          max,
	}

	text := fmt.Sprintf("Number Guessing Game!\nI'm thinking of a number between %d and %d.\nYou have %d attempts. What's your guess?",
		min, max, attempts)
	return plugin.Response{Text: text, Continue: true, State: state}, nil
}

func (p NumberGuess) Resume(_ context.Context, pc plugin.Context) (plugin.Response, error) {
	input := strings.ToLower(strings.TrimSpace(pc.Message.Text))
	if exitWords[input] {
		return plugin.Response{Text: "Returning to the main menu. Send MENU to see options."}, nil
	}

	target := settingInt(pc.State, "target", 0)
	attempts := settingInt(pc.State, "attempts", 0)
	maxAttempts := settingInt(pc.State, "max_attempts", 7)
	min := settingInt(pc.State, "min", 1)
	max := settingInt(pc.State, "max", 100)

	guess, err := strconv.Atoi(input)
	if err != nil {
		return plugin.Response{
			Text:     fmt.Sprintf("Please enter a number between %d and %d", min, max),
			Continue: true,
			State:    pc.State,
		}, nil
	}

	attempts++
	pc.State["attempts"] = attempts

	switch {
	case guess == target:
		return plugin.Response{
			Text: fmt.Sprintf("Correct! The number was %d.\nYou got it in %d attempts!", target, attempts),
		}, nil
	case attempts >= maxAttempts:
		return plugin.Response{
			Text: fmt.Sprintf("Game over! The number was %d.\nBetter luck next time!", target),
		}, nil
	}

	hint := "Too low!"
	if guess > target {
		hint = "Too high!"
	}
	return plugin.Response{
		Text:     fmt.Sprintf("%s %d attempts left. Try again:", hint, maxAttempts-attempts),
		Continue: true,
		State:    pc.State,
	}, nil
}
