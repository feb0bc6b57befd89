package config

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jpalmerr/statecast"
)

// ErrSimulatedFailure is the outcome of a simulated operation that was
// chosen to fail by operation_failure_rate.
var ErrSimulatedFailure = errors.New("simulated failure")

// BuildSeed converts the seed section into store seeds.
//
// Without a seed section the built-in seeds are returned. Message
// timestamps are computed from now minus each message's age.
func BuildSeed(cfg *Config, now time.Time) ([]statecast.User, []statecast.Message) {
	if cfg.Seed == nil {
		return statecast.DefaultSeedUsers(), statecast.DefaultSeedMessages(now)
	}

	users := make([]statecast.User, 0, len(cfg.Seed.Users))
	for _, uc := range cfg.Seed.Users {
		active := true
		if uc.Active != nil {
			active = *uc.Active
		}
		users = append(users, statecast.User{
			ID:     uc.ID,
			Name:   uc.Name,
			Email:  uc.Email,
			Active: active,
		})
	}

	msgs := make([]statecast.Message, 0, len(cfg.Seed.Messages))
	for _, mc := range cfg.Seed.Messages {
		msgs = append(msgs, statecast.Message{
			Text:      mc.Text,
			Kind:      statecast.MessageKind(mc.Kind),
			CreatedAt: now.Add(-mc.Age.Duration()),
		})
	}

	return users, msgs
}

// BuildOptions converts the simulation settings into store options.
func BuildOptions(cfg *Config) []statecast.Option {
	opts := []statecast.Option{
		statecast.WithUsersLoadDelay(cfg.UsersLoadDelay.Duration()),
		statecast.WithActiveUsersDelay(cfg.ActiveUsersDelay.Duration()),
		statecast.WithOperationDelay(cfg.OperationDelay.Duration()),
	}

	if rate := cfg.OperationFailureRate; rate > 0 {
		opts = append(opts, statecast.WithOperationOutcome(failureOutcome(rate, rand.Float64)))
	}

	return opts
}

// failureOutcome returns an outcome function that fails with probability rate.
func failureOutcome(rate float64, roll func() float64) func() error {
	return func() error {
		if roll() < rate {
			return ErrSimulatedFailure
		}
		return nil
	}
}
