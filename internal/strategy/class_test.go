package strategy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassRegistry_BuildUnknownClassErrors(t *testing.T) {
	reg := NewClassRegistry()
	_, err := reg.Build("nonexistent", "s1", nil)
	require.Error(t, err)
}

func TestClassRegistry_BuildKnownClass(t *testing.T) {
	reg := NewClassRegistry()
	reg.RegisterClass("noop", func(name string, settings Settings) *Strategy {
		return &Strategy{Name: name, TimerTrigger: int(settings.Get("timer_trigger", 1))}
	})

	s, err := reg.Build("noop", "s1", Settings{"timer_trigger": 3})
	require.NoError(t, err)
	require.Equal(t, "s1", s.Name)
	require.Equal(t, 3, s.TimerTrigger)
	require.ElementsMatch(t, []string{"noop"}, reg.ClassNames())
}
