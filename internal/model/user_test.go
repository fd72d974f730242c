package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleCapabilities(t *testing.T) {
	tests := []struct {
		role UserRole
		cap  Capability
		want bool
	}{
		{Student, CapTakeQuiz, true},
		{Student, CapManageCourses, false},
		{Student, CapManageQuizzes, false},
		{Student, CapManageUsers, false},
		{Instructor, CapTakeQuiz, true},
		{Instructor, CapManageCourses, true},
		{Instructor, CapManageQuizzes, true},
		{Instructor, CapManageUsers, false},
		{Admin, CapManageUsers, true},
		{Admin, CapManageCourses, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.role.Can(tt.cap), "%s / %s", tt.role, tt.cap)
	}

	// 未知角色没有任何能力
	assert.False(t, UserRole("ghost").Can(CapTakeQuiz))
}

func TestRoleValid(t *testing.T) {
	assert.True(t, Student.Valid())
	assert.True(t, Instructor.Valid())
	assert.True(t, Admin.Valid())
	assert.False(t, UserRole("superuser").Valid())
	assert.False(t, UserRole("").Valid())
}
