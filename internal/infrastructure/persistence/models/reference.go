package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/fees"
)

// AcademicYearModel is the persistence model for academic years
type AcademicYearModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"type:varchar(50);not null;uniqueIndex"`
	StartDate time.Time `gorm:"type:date;not null"`
	EndDate   time.Time `gorm:"type:date;not null"`
	IsActive  bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AcademicYearModel) TableName() string {
	return "academic_years"
}

// ToDomain converts the persistence model to a domain AcademicYear
func (m *AcademicYearModel) ToDomain() *fees.AcademicYear {
	return &fees.AcademicYear{
		ID:        m.ID,
		Name:      m.Name,
		StartDate: m.StartDate,
		EndDate:   m.EndDate,
		IsActive:  m.IsActive,
	}
}

// GradeModel is the persistence model for grades
type GradeModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"type:varchar(50);not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (GradeModel) TableName() string {
	return "grades"
}

// ToDomain converts the persistence model to a domain Grade
func (m *GradeModel) ToDomain() *fees.Grade {
	return &fees.Grade{ID: m.ID, Name: m.Name}
}

// StudentModel is the persistence model for students
type StudentModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name            string    `gorm:"type:varchar(200);not null"`
	AdmissionNumber string    `gorm:"type:varchar(50);not null;uniqueIndex"`
	GradeID         uuid.UUID `gorm:"type:uuid;not null;index"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StudentModel) TableName() string {
	return "students"
}

// ToDomain converts the persistence model to a domain Student
func (m *StudentModel) ToDomain() *fees.Student {
	return &fees.Student{
		ID:              m.ID,
		Name:            m.Name,
		AdmissionNumber: m.AdmissionNumber,
		GradeID:         m.GradeID,
	}
}

// FeeCategoryModel is the persistence model for fee categories
type FeeCategoryModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name        string    `gorm:"type:varchar(100);not null;uniqueIndex"`
	Description string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (FeeCategoryModel) TableName() string {
	return "fee_categories"
}

// ToDomain converts the persistence model to a domain FeeCategory
func (m *FeeCategoryModel) ToDomain() *fees.FeeCategory {
	return &fees.FeeCategory{ID: m.ID, Name: m.Name, Description: m.Description}
}
