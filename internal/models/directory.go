package models

// Student is a trainee as exposed by the people directory.
type Student struct {
	ID        string  `db:"id" json:"id"`
	FullName  string  `db:"full_name" json:"full_name"`
	Email     string  `db:"email" json:"email"`
	CompanyID *string `db:"company_id" json:"company_id,omitempty"`
}

// Company is the employer a student is trained for.
type Company struct {
	ID    string `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
}

// Course is the catalogue entry a class teaches.
type Course struct {
	ID            string `db:"id" json:"id"`
	Name          string `db:"name" json:"name"`
	WorkloadHours int    `db:"workload_hours" json:"workload_hours"`
}

// Instructor teaches scheduled classes.
type Instructor struct {
	ID       string `db:"id" json:"id"`
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
}
