package utils

type contextKey int

const userKey contextKey = iota

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)
