package permission

// Role names used by the default tables.
const (
	RoleAdmin          = "ADMIN"
	RoleInstituteAdmin = "INSTITUTE_ADMIN"
	RoleBranchAdmin    = "BRANCH_ADMIN"
	RolePrincipal      = "PRINCIPAL"
	RoleTeacher        = "TEACHER"
	RoleAccountant     = "ACCOUNTANT"
	RoleStaff          = "STAFF"
	RoleStudent        = "STUDENT"
	RoleParent         = "PARENT"
)

// Tables is the static capability configuration.
//
// Modules and LegacyModules map a module key to the roles allowed to open
// it. Roles and LegacyRoles map a role to its permission keys.
type Tables struct {
	Modules       map[string][]string
	LegacyModules map[string][]string
	Roles         map[string][]string
	LegacyRoles   map[string][]string
}

// DefaultTables returns the institutional ERP tables.
func DefaultTables() Tables {
	admins := []string{RoleAdmin, RoleInstituteAdmin}
	management := append([]string{RoleBranchAdmin, RolePrincipal}, admins...)

	return Tables{
		Modules: map[string][]string{
			"dashboard":      {Wildcard},
			"profile":        {Wildcard},
			"students":       append([]string{RoleTeacher, RoleStaff}, management...),
			"admissions":     append([]string{RoleStaff}, management...),
			"attendance":     append([]string{RoleTeacher}, management...),
			"marks":          append([]string{RoleTeacher}, management...),
			"fees":           append([]string{RoleAccountant}, management...),
			"payroll":        append([]string{RoleAccountant}, admins...),
			"reservations":   append([]string{RoleStaff}, management...),
			"reports":        append([]string{RoleAccountant}, management...),
			"branches":       admins,
			"academic_years": admins,
			"settings":       admins,
			"my_results":     {RoleStudent, RoleParent},
			"my_fees":        {RoleStudent, RoleParent},
		},
		LegacyModules: map[string][]string{
			"old_reports":   append([]string{RoleAccountant}, management...),
			"fee_receipts":  append([]string{RoleAccountant}, management...),
			"students":      {RoleAdmin},
			"sms_gateway":   admins,
			"transfer_cert": append([]string{RoleStaff}, management...),
		},
		Roles: map[string][]string{
			RoleAdmin:          {Wildcard},
			RoleInstituteAdmin: {Wildcard},
			RoleBranchAdmin: {
				"students.read", "students.write", "marks.read", "marks.write",
				"fees.read", "fees.collect", "reservations.manage", "reports.view",
			},
			RolePrincipal: {
				"students.read", "students.write", "marks.read", "marks.approve",
				"fees.read", "reports.view",
			},
			RoleTeacher:    {"students.read", "marks.read", "marks.write", "attendance.mark"},
			RoleAccountant: {"fees.read", "fees.collect", "fees.refund", "payroll.read", "payroll.run", "reports.view"},
			RoleStaff:      {"students.read", "reservations.manage"},
			RoleStudent:    {"marks.read.self", "fees.read.self"},
			RoleParent:     {"marks.read.self", "fees.read.self"},
		},
		LegacyRoles: map[string][]string{
			"CLERK":     {"students.read", "fees.read"},
			"LIBRARIAN": {"library.issue", "library.return"},
		},
	}
}
