package auth

// Roles recognized by the policy engine.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// ValidRole reports whether the role is one this system issues.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleTeacher || role == RoleStudent
}

// CanAccessExam reports whether the identity may read an exam's metadata and
// content. Students may read any exam in order to take it; answer keys are
// gated separately by CanViewAnswerKey.
func CanAccessExam(role, userID, examOwnerID string) bool {
	switch role {
	case RoleAdmin, RoleStudent:
		return true
	case RoleTeacher:
		return userID == examOwnerID
	}
	return false
}

// CanManageExam reports whether the identity may create, update, or
// deactivate an exam. Only the owning teacher and admins qualify.
func CanManageExam(role, userID, examOwnerID string) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleTeacher:
		return userID == examOwnerID
	}
	return false
}

// CanViewAnswerKey reports whether correct-answer fields may appear in a
// response for this identity.
func CanViewAnswerKey(role string) bool {
	return role == RoleAdmin || role == RoleTeacher
}
