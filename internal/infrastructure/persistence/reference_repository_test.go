package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormReferenceRepository_Find(t *testing.T) {
	f := setupLedgerSQLite(t)
	repo := NewGormReferenceRepository(f.db)
	ctx := context.Background()

	student, err := repo.FindStudent(ctx, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, "ADM-0001", student.AdmissionNumber)
	assert.Equal(t, f.grade.ID, student.GradeID)

	year, err := repo.FindAcademicYear(ctx, f.year.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026", year.Name)
	assert.True(t, year.IsActive)

	grade, err := repo.FindGrade(ctx, f.grade.ID)
	require.NoError(t, err)
	assert.Equal(t, "Primary 5", grade.Name)

	category, err := repo.FindFeeCategory(ctx, f.tuition.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tuition", category.Name)
}

func TestGormReferenceRepository_NotFound(t *testing.T) {
	f := setupLedgerSQLite(t)
	repo := NewGormReferenceRepository(f.db)
	ctx := context.Background()
	missing := uuid.New()

	tests := []struct {
		resource string
		find     func() error
	}{
		{"student", func() error { _, err := repo.FindStudent(ctx, missing); return err }},
		{"academic_year", func() error { _, err := repo.FindAcademicYear(ctx, missing); return err }},
		{"grade", func() error { _, err := repo.FindGrade(ctx, missing); return err }},
		{"fee_category", func() error { _, err := repo.FindFeeCategory(ctx, missing); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.resource, func(t *testing.T) {
			var nf *fees.NotFoundError
			require.ErrorAs(t, tt.find(), &nf)
			assert.Equal(t, tt.resource, nf.Resource)
			assert.Equal(t, missing, nf.ID)
		})
	}
}
