package constants

import "fmt"

const (
	RolePupil   = "pupil"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
	RoleOwner   = "owner"
)

// Template pesan error role
const (
	ErrOnlyTeachersCanAccess = "❌ Only teachers, admins or owners may use %s."
	ErrOnlyAdminsCanAccess   = "❌ Only admins may use %s."
)

func RoleErrorTeacher(feature string) string {
	return fmt.Sprintf(ErrOnlyTeachersCanAccess, feature)
}

func RoleErrorAdmin(feature string) string {
	return fmt.Sprintf(ErrOnlyAdminsCanAccess, feature)
}

// ==========================
// ✅ Grouped Role Slices
// ==========================
var (
	AllRoles = []string{
		RolePupil,
		RoleTeacher,
		RoleAdmin,
		RoleOwner,
	}

	TeacherAndAbove = []string{
		RoleTeacher,
		RoleAdmin,
		RoleOwner,
	}

	AdminAndAbove = []string{
		RoleAdmin,
		RoleOwner,
	}
)

// IsAdmin reports whether role may review workflows.
func IsAdmin(role string) bool {
	return role == RoleAdmin || role == RoleOwner
}

// IsStaff reports whether role may read other pupils' records.
func IsStaff(role string) bool {
	return role == RoleTeacher || IsAdmin(role)
}
