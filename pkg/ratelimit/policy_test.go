package ratelimit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirewire/admission/pkg/ratelimit"
)

func TestPolicyValidate(t *testing.T) {
	t.Parallel()

	valid := ratelimit.Policy{Name: "api", Window: time.Minute, MaxCount: 60}
	assert.NoError(t, valid.Validate())

	t.Run("missing name", func(t *testing.T) {
		t.Parallel()

		p := valid
		p.Name = ""
		assert.ErrorIs(t, p.Validate(), ratelimit.ErrInvalidPolicy)
	})

	t.Run("zero max count", func(t *testing.T) {
		t.Parallel()

		p := valid
		p.MaxCount = 0
		assert.ErrorIs(t, p.Validate(), ratelimit.ErrInvalidPolicy)
	})

	t.Run("negative window", func(t *testing.T) {
		t.Parallel()

		p := valid
		p.Window = -time.Second
		assert.ErrorIs(t, p.Validate(), ratelimit.ErrInvalidPolicy)
	})
}

func TestPolicyKey(t *testing.T) {
	t.Parallel()

	p := ratelimit.Policy{Name: "auth", Window: time.Minute, MaxCount: 10}
	assert.Equal(t, "auth:v1:abc", p.Key("v1:abc"))
}

func TestDefaultPolicies(t *testing.T) {
	t.Parallel()

	registry, err := ratelimit.NewRegistry(ratelimit.DefaultPolicies()...)
	require.NoError(t, err)

	tests := []struct {
		name              string
		window            time.Duration
		maxCount          int64
		excludeSuccessful bool
	}{
		{ratelimit.PolicyGlobal, 15 * time.Minute, 1000, false},
		{ratelimit.PolicyAuth, 15 * time.Minute, 10, true},
		{ratelimit.PolicyUpload, time.Hour, 20, false},
		{ratelimit.PolicyAPI, time.Minute, 60, false},
		{ratelimit.PolicySensitive, time.Hour, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := registry.Get(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.window, p.Window)
			assert.Equal(t, tt.maxCount, p.MaxCount)
			assert.Equal(t, tt.excludeSuccessful, p.ExcludeSuccessful)
			assert.NotEmpty(t, p.Message)
		})
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	t.Run("rejects invalid policy", func(t *testing.T) {
		t.Parallel()

		_, err := ratelimit.NewRegistry(ratelimit.Policy{Name: "broken", Window: time.Minute, MaxCount: 0})
		assert.ErrorIs(t, err, ratelimit.ErrInvalidPolicy)
	})

	t.Run("rejects duplicate name", func(t *testing.T) {
		t.Parallel()

		_, err := ratelimit.NewRegistry(
			ratelimit.Policy{Name: "api", Window: time.Minute, MaxCount: 60},
			ratelimit.Policy{Name: "api", Window: time.Hour, MaxCount: 10},
		)
		assert.ErrorIs(t, err, ratelimit.ErrDuplicatePolicy)
	})

	t.Run("unknown policy", func(t *testing.T) {
		t.Parallel()

		registry, err := ratelimit.NewRegistry(ratelimit.DefaultPolicies()...)
		require.NoError(t, err)

		_, err = registry.Get("nope")
		assert.ErrorIs(t, err, ratelimit.ErrUnknownPolicy)
	})

	t.Run("all preserves registration order", func(t *testing.T) {
		t.Parallel()

		registry, err := ratelimit.NewRegistry(
			ratelimit.Policy{Name: "b", Window: time.Minute, MaxCount: 1},
			ratelimit.Policy{Name: "a", Window: time.Minute, MaxCount: 1},
		)
		require.NoError(t, err)

		all := registry.All()
		require.Len(t, all, 2)
		assert.Equal(t, "b", all[0].Name)
		assert.Equal(t, "a", all[1].Name)
	})

	t.Run("must get panics on unknown", func(t *testing.T) {
		t.Parallel()

		registry, err := ratelimit.NewRegistry(ratelimit.DefaultPolicies()...)
		require.NoError(t, err)

		assert.Panics(t, func() { registry.MustGet("nope") })
	})
}
