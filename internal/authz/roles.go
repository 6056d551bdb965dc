package authz

// Значения поля users.user_type.
const (
	UserTypeAdmin      = "Administrador"
	UserTypeSeller     = "Vendedor"
	UserTypeOperations = "Operaciones"
	UserTypeFinance    = "Finanzas"
	UserTypeAuditor    = "Auditor"
)

func IsAdmin(userType string) bool {
	return userType == UserTypeAdmin
}

func IsReadOnly(userType string) bool {
	return userType == UserTypeAuditor
}

func IsKnown(userType string) bool {
	switch userType {
	case UserTypeAdmin, UserTypeSeller, UserTypeOperations, UserTypeFinance, UserTypeAuditor:
		return true
	}
	return false
}
