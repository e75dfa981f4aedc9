package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itish2003/ragagent/models"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"37593 * 67", "2518731"},
		{"1 + 2 * 3", "7"},
		{"(1 + 2) * 3", "9"},
		{"2 ^ 3 ^ 2", "512"},
		{"2 ** 10", "1024"},
		{"-2 ^ 2", "-4"},
		{"2 ^ -1", "0.5"},
		{"10 % 4", "2"},
		{"7 / 2", "3.5"},
		{"1e3 + 1", "1001"},
		{"  42  ", "42"},
		{"pi * 0", "0"},
		{"3 × 4 ÷ 2", "6"},
		{"+5 - -5", "10"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_Constants(t *testing.T) {
	got, err := Evaluate("pi")
	require.NoError(t, err)
	assert.Equal(t, "3.141592653589793", got)

	got, err = Evaluate("E")
	require.NoError(t, err)
	assert.Equal(t, "2.718281828459045", got)
}

func TestEvaluate_Rejects(t *testing.T) {
	inputs := []string{
		"__import__('os')",
		"__import__(\"os\").system(\"ls\")",
		"open('/etc/passwd')",
		"x + 1",
		"sqrt(4)",
		"1 +",
		"(1 + 2",
		"1 / 0",
		"5 % 0",
		"",
		"1; 2",
		"a.b",
		"10 ^ 400",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Evaluate(in)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrEvaluation)

			var ee *models.EvaluationError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, in, ee.Expression)
		})
	}
}
