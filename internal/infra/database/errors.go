package database

import "fmt"

// Custom errors
var ErrComplaintNotFound = fmt.Errorf("complaint not found")
var ErrDepartmentNotFound = fmt.Errorf("department not found")
