package service

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/turmas-api/internal/models"
	appErrors "github.com/noah-isme/turmas-api/pkg/errors"
)

func TestEvaluationCollectorCompletedOnlyWithBothFields(t *testing.T) {
	c := NewEvaluationCollector([]string{"A", "B", "C"})

	require.NoError(t, c.SetGrade("A", 8))
	require.NoError(t, c.SetApproved("A", true))
	require.NoError(t, c.SetField("B", FieldGrade, 3))
	require.NoError(t, c.SetField("B", FieldApproved, false))
	require.NoError(t, c.SetGrade("C", 7))

	completed := c.Completed()
	require.Len(t, completed, 2)
	assert.Equal(t, models.StudentOutcome{StudentID: "A", Outcome: models.Outcome{Grade: 8, Approved: true}}, completed[0])
	assert.Equal(t, "B", completed[1].StudentID)
	assert.Equal(t, []string{"C"}, c.Pending())
}

func TestEvaluationCollectorRejectsUnknownStudent(t *testing.T) {
	c := NewEvaluationCollector([]string{"A"})

	err := c.SetGrade("Z", 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownStudent))

	_, exists := c.Draft("Z")
	assert.False(t, exists)
	assert.Equal(t, []string{"A"}, c.Pending())
}

func TestEvaluationCollectorValidatesValues(t *testing.T) {
	c := NewEvaluationCollector([]string{"A"})

	for _, grade := range []float64{-0.5, 10.01, math.NaN(), math.Inf(1), math.Inf(-1)} {
		err := c.SetGrade("A", grade)
		require.Error(t, err)
		assert.True(t, errors.Is(err, appErrors.ErrValidation))
	}
	require.NoError(t, c.SetGrade("A", 0))
	require.NoError(t, c.SetGrade("A", 10))

	assert.True(t, errors.Is(c.SetField("A", FieldGrade, "nine"), appErrors.ErrValidation))
	assert.True(t, errors.Is(c.SetField("A", FieldGrade, json.Number("NaN")), appErrors.ErrValidation))
	assert.True(t, errors.Is(c.SetField("A", FieldApproved, "yes"), appErrors.ErrValidation))
	assert.True(t, errors.Is(c.SetField("A", EvaluationField("note"), 1), appErrors.ErrValidation))
}

func TestEvaluationCollectorNonFiniteGradeNeverCompletes(t *testing.T) {
	c := NewEvaluationCollector([]string{"A"})

	require.Error(t, c.SetGrade("A", math.NaN()))
	require.Error(t, c.SetField("A", FieldGrade, json.Number("NaN")))
	require.NoError(t, c.SetApproved("A", true))

	_, err := c.Commit()
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, c.Completed())
}

func TestEvaluationCollectorCommitRequiresOneComplete(t *testing.T) {
	c := NewEvaluationCollector([]string{"A", "B"})
	require.NoError(t, c.SetApproved("A", true))

	_, err := c.Commit()
	require.Error(t, err)
	assert.Equal(t, "at least one evaluation required", appErrors.FromError(err).Message)

	require.NoError(t, c.SetGrade("A", 6.5))
	outcomes, err := c.Commit()
	require.NoError(t, err)
	assert.Len(t, outcomes, 1)
}

func TestEvaluationCollectorApply(t *testing.T) {
	c := NewEvaluationCollector([]string{"A", "A", "B"})
	grade, approved := 9.0, true

	require.NoError(t, c.Apply("A", models.EvaluationDraft{Grade: &grade}))
	require.NoError(t, c.Apply("A", models.EvaluationDraft{Approved: &approved}))
	require.Error(t, c.Apply("X", models.EvaluationDraft{Grade: &grade}))

	assert.Len(t, c.Completed(), 1)
	assert.Equal(t, []string{"B"}, c.Pending())
}
