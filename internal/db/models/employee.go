package models

import "time"

// Employee is a person who acknowledges policies. Email is unique across all companies.
type Employee struct {
	ID        int64     `db:"id" json:"id"`
	CompanyID int64     `db:"company_id" json:"companyId"`
	Email     string    `db:"email" json:"email"`
	FirstName string    `db:"first_name" json:"firstName"`
	LastName  string    `db:"last_name" json:"lastName"`
	IsActive  bool      `db:"is_active" json:"isActive"`
	StartDate time.Time `db:"start_date" json:"startDate"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// FullName joins first and last name.
func (e *Employee) FullName() string {
	if e.LastName == "" {
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

// EmployeeRole links an employee to a role.
type EmployeeRole struct {
	ID         int64     `db:"id" json:"id"`
	EmployeeID int64     `db:"employee_id" json:"employeeId"`
	RoleID     int64     `db:"role_id" json:"roleId"`
	AssignedAt time.Time `db:"assigned_at" json:"assignedAt"`
}

// EmployeeRoleWithRole is an assignment with the role record attached.
type EmployeeRoleWithRole struct {
	EmployeeRole
	Role Role `db:"role" json:"role"`
}

// EmployeeWithRoles is an employee together with every role they hold.
type EmployeeWithRoles struct {
	Employee
	Roles []EmployeeRoleWithRole `json:"roles"`
}
